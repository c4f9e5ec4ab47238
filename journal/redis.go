package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisHistory is a History keeping a capped list per user in Redis.
type RedisHistory struct {
	client    redis.Cmdable
	prefix    string
	max       int64
	retention time.Duration
}

// RedisHistoryOptions configure a RedisHistory.
type RedisHistoryOptions struct {
	// KeyPrefix namespaces the per-user lists.
	KeyPrefix string
	// MaxMessages caps each list; older messages are trimmed.
	MaxMessages int
	// Retention expires idle lists. Zero keeps them forever.
	Retention time.Duration
}

// ConnectRedis creates and pings a Redis client.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisHistory creates a RedisHistory on client.
func NewRedisHistory(client redis.Cmdable, optFns ...func(o *RedisHistoryOptions)) *RedisHistory {
	opts := RedisHistoryOptions{
		KeyPrefix:   "journalmesh:chat:",
		MaxMessages: 200,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 200
	}

	return &RedisHistory{
		client:    client,
		prefix:    opts.KeyPrefix,
		max:       int64(opts.MaxMessages),
		retention: opts.Retention,
	}
}

func (h *RedisHistory) key(userID string) string {
	return h.prefix + userID
}

// Append implements History. Messages are grouped per user and written in
// one transaction per user.
func (h *RedisHistory) Append(ctx context.Context, msgs ...ChatMessage) error {
	byUser := map[string][]any{}
	order := []string{}

	for _, m := range msgs {
		prepareMessage(&m, time.Now)

		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode chat message: %w", err)
		}

		if _, ok := byUser[m.UserID]; !ok {
			order = append(order, m.UserID)
		}
		byUser[m.UserID] = append(byUser[m.UserID], b)
	}

	for _, userID := range order {
		key := h.key(userID)
		_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, byUser[userID]...)
			pipe.LTrim(ctx, key, -h.max, -1)
			if h.retention > 0 {
				pipe.Expire(ctx, key, h.retention)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("append chat history: %w", err)
		}
	}

	return nil
}

// Recent implements History.
func (h *RedisHistory) Recent(ctx context.Context, userID string, limit int) ([]ChatMessage, error) {
	raw, err := h.client.LRange(ctx, h.key(userID), -int64(clampLimit(limit)), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read chat history: %w", err)
	}
	return decodeMessages(raw)
}

// Search implements History. The capped list is scanned in full.
func (h *RedisHistory) Search(ctx context.Context, userID, query string, limit int) ([]ChatMessage, error) {
	raw, err := h.client.LRange(ctx, h.key(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read chat history: %w", err)
	}

	msgs, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}

	return searchMessages(msgs, query, clampLimit(limit)), nil
}

func decodeMessages(raw []string) ([]ChatMessage, error) {
	msgs := make([]ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
