package journal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the MongoDB backend.
const (
	CollectionJournals     = "journals"
	CollectionTemplates    = "templates"
	CollectionChatMessages = "chat_messages"
)

// ConnectMongo connects and pings a MongoDB deployment.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return client, nil
}

// MongoStore is a Store backed by the journals and templates collections.
type MongoStore struct {
	journals  *mongo.Collection
	templates *mongo.Collection
}

// NewMongoStore creates a MongoStore on db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		journals:  db.Collection(CollectionJournals),
		templates: db.Collection(CollectionTemplates),
	}
}

// EnsureIndexes creates the per-user indexes the queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.journals.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("journals index: %w", err)
	}

	_, err = s.templates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "name", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("templates index: %w", err)
	}

	return nil
}

// CreateEntry implements Store.
func (s *MongoStore) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.Tags = normalizeTags(e.Tags)
	e.CreatedAt, e.UpdatedAt = now, now

	if _, err := s.journals.InsertOne(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("insert journal: %w", err)
	}

	return e, nil
}

// GetEntry implements Store.
func (s *MongoStore) GetEntry(ctx context.Context, userID, id string) (Entry, error) {
	var e Entry
	if err := s.journals.FindOne(ctx, ownedBy(userID, id)).Decode(&e); err != nil {
		return Entry{}, notFound(err, "find journal")
	}
	return e, nil
}

// UpdateEntry implements Store.
func (s *MongoStore) UpdateEntry(ctx context.Context, userID, id string, patch EntryPatch) (Entry, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Tags != nil {
		set["tags"] = normalizeTags(*patch.Tags)
	}
	if patch.Mood != nil {
		set["mood"] = *patch.Mood
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var e Entry
	if err := s.journals.FindOneAndUpdate(ctx, ownedBy(userID, id), bson.M{"$set": set}, opts).Decode(&e); err != nil {
		return Entry{}, notFound(err, "update journal")
	}

	return e, nil
}

// DeleteEntry implements Store.
func (s *MongoStore) DeleteEntry(ctx context.Context, userID, id string) error {
	res, err := s.journals.DeleteOne(ctx, ownedBy(userID, id))
	if err != nil {
		return fmt.Errorf("delete journal: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEntries implements Store.
func (s *MongoStore) ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return s.findEntries(ctx, bson.M{"user_id": userID}, limit)
}

// SearchEntries implements Store.
func (s *MongoStore) SearchEntries(ctx context.Context, userID, query string, limit int) ([]Entry, error) {
	return s.findEntries(ctx, entrySearchFilter(userID, query), limit)
}

func (s *MongoStore) findEntries(ctx context.Context, filter bson.M, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))

	cursor, err := s.journals.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find journals: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode journals: %w", err)
	}

	return entries, nil
}

// CreateTemplate implements Store.
func (s *MongoStore) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()

	if _, err := s.templates.InsertOne(ctx, t); err != nil {
		return Template{}, fmt.Errorf("insert template: %w", err)
	}

	return t, nil
}

// ListTemplates implements Store.
func (s *MongoStore) ListTemplates(ctx context.Context, userID string) ([]Template, error) {
	cursor, err := s.templates.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find templates: %w", err)
	}
	defer cursor.Close(ctx)

	templates := []Template{}
	if err := cursor.All(ctx, &templates); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	return templates, nil
}

// GetTemplate implements Store.
func (s *MongoStore) GetTemplate(ctx context.Context, userID, id string) (Template, error) {
	var t Template
	if err := s.templates.FindOne(ctx, ownedBy(userID, id)).Decode(&t); err != nil {
		return Template{}, notFound(err, "find template")
	}
	return t, nil
}

// MongoHistory is a History backed by the chat_messages collection.
type MongoHistory struct {
	messages *mongo.Collection
}

// NewMongoHistory creates a MongoHistory on db.
func NewMongoHistory(db *mongo.Database) *MongoHistory {
	return &MongoHistory{messages: db.Collection(CollectionChatMessages)}
}

// Append implements History.
func (h *MongoHistory) Append(ctx context.Context, msgs ...ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	docs := make([]any, 0, len(msgs))
	for _, m := range msgs {
		prepareMessage(&m, time.Now)
		docs = append(docs, m)
	}

	if _, err := h.messages.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert chat messages: %w", err)
	}

	return nil
}

// Recent implements History.
func (h *MongoHistory) Recent(ctx context.Context, userID string, limit int) ([]ChatMessage, error) {
	msgs, err := h.find(ctx, bson.M{"user_id": userID}, limit)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// Search implements History.
func (h *MongoHistory) Search(ctx context.Context, userID, query string, limit int) ([]ChatMessage, error) {
	return h.find(ctx, bson.M{"user_id": userID, "text": containsInsensitive(query)}, limit)
}

// find returns matches newest first.
func (h *MongoHistory) find(ctx context.Context, filter bson.M, limit int) ([]ChatMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))

	cursor, err := h.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find chat messages: %w", err)
	}
	defer cursor.Close(ctx)

	msgs := []ChatMessage{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode chat messages: %w", err)
	}

	return msgs, nil
}

func ownedBy(userID, id string) bson.M {
	return bson.M{"_id": id, "user_id": userID}
}

func containsInsensitive(query string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
}

func entrySearchFilter(userID, query string) bson.M {
	match := containsInsensitive(query)
	return bson.M{
		"user_id": userID,
		"$or": bson.A{
			bson.M{"title": match},
			bson.M{"content": match},
			bson.M{"tags": match},
		},
	}
}

func notFound(err error, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
