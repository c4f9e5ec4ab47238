package journal

import (
	"errors"
	"fmt"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/tool"
)

// Tool names.
const (
	ToolCreateJournal     = "create_journal"
	ToolGetJournal        = "get_journal"
	ToolUpdateJournal     = "update_journal"
	ToolDeleteJournal     = "delete_journal"
	ToolListJournals      = "list_journals"
	ToolSearchJournals    = "search_journals"
	ToolCreateTemplate    = "create_template"
	ToolListTemplates     = "list_templates"
	ToolGetTemplate       = "get_template"
	ToolSearchChatHistory = "search_chat_history"
)

type createJournalArgs struct {
	Title   string   `json:"title" jsonschema:"description=Short title of the entry" validate:"required,max=200"`
	Content string   `json:"content" jsonschema:"description=Full text of the entry" validate:"required"`
	Tags    []string `json:"tags,omitempty" jsonschema:"description=Topic tags" validate:"omitempty,max=20,dive,min=1,max=40"`
	Mood    string   `json:"mood,omitempty" jsonschema:"description=Mood label such as calm or anxious" validate:"omitempty,max=40"`
}

type journalIDArgs struct {
	JournalID string `json:"journal_id" jsonschema:"description=Id of the journal entry" validate:"required"`
}

type updateJournalArgs struct {
	JournalID string    `json:"journal_id" jsonschema:"description=Id of the journal entry" validate:"required"`
	Title     *string   `json:"title,omitempty" jsonschema:"description=New title" validate:"omitempty,max=200"`
	Content   *string   `json:"content,omitempty" jsonschema:"description=New text"`
	Tags      *[]string `json:"tags,omitempty" jsonschema:"description=Replacement tag set" validate:"omitempty,max=20,dive,min=1,max=40"`
	Mood      *string   `json:"mood,omitempty" jsonschema:"description=New mood label" validate:"omitempty,max=40"`
}

type listArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"description=Maximum number of results" validate:"omitempty,min=1,max=100"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=Text to look for" validate:"required"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results" validate:"omitempty,min=1,max=100"`
}

type createTemplateArgs struct {
	Name string `json:"name" jsonschema:"description=Template name" validate:"required,max=100"`
	Body string `json:"body" jsonschema:"description=Template text with prompts for the writer" validate:"required"`
}

type listTemplatesArgs struct{}

type templateIDArgs struct {
	TemplateID string `json:"template_id" jsonschema:"description=Id of the template" validate:"required"`
}

// Tools builds the journal, template and chat history tool table.
func Tools(store Store, history History) []tool.Definition {
	return []tool.Definition{
		tool.MustFunction(ToolCreateJournal, tool.CategoryJournal,
			"Create a new journal entry for the user.",
			func(tc *core.ToolContext, args createJournalArgs) (any, error) {
				return store.CreateEntry(tc.Context(), Entry{
					UserID:  tc.UserID(),
					Title:   args.Title,
					Content: args.Content,
					Tags:    args.Tags,
					Mood:    args.Mood,
				})
			}, tool.Mutating()),

		tool.MustFunction(ToolGetJournal, tool.CategoryJournal,
			"Fetch one journal entry by id.",
			func(tc *core.ToolContext, args journalIDArgs) (any, error) {
				return wrap(store.GetEntry(tc.Context(), tc.UserID(), args.JournalID))
			}),

		tool.MustFunction(ToolUpdateJournal, tool.CategoryJournal,
			"Update fields of a journal entry. Omitted fields are kept; tags replace the existing set.",
			func(tc *core.ToolContext, args updateJournalArgs) (any, error) {
				patch := EntryPatch{Title: args.Title, Content: args.Content, Tags: args.Tags, Mood: args.Mood}
				if patch.Empty() {
					return nil, fmt.Errorf("%w: nothing to update", core.ErrToolValidation)
				}
				return wrap(store.UpdateEntry(tc.Context(), tc.UserID(), args.JournalID, patch))
			}, tool.Mutating()),

		tool.MustFunction(ToolDeleteJournal, tool.CategoryJournal,
			"Delete a journal entry by id.",
			func(tc *core.ToolContext, args journalIDArgs) (any, error) {
				err := store.DeleteEntry(tc.Context(), tc.UserID(), args.JournalID)
				if err == nil {
					tc.Logger().Info("journal.entry.deleted", "journal_id", args.JournalID)
				}
				return wrap(map[string]any{"deleted": true, "journal_id": args.JournalID}, err)
			}, tool.Mutating()),

		tool.MustFunction(ToolListJournals, tool.CategoryJournal,
			"List the user's most recent journal entries.",
			func(tc *core.ToolContext, args listArgs) (any, error) {
				return store.ListEntries(tc.Context(), tc.UserID(), args.Limit)
			}),

		tool.MustFunction(ToolSearchJournals, tool.CategoryJournal,
			"Search the user's journal entries by text or tag.",
			func(tc *core.ToolContext, args searchArgs) (any, error) {
				return store.SearchEntries(tc.Context(), tc.UserID(), args.Query, args.Limit)
			}),

		tool.MustFunction(ToolCreateTemplate, tool.CategoryTemplate,
			"Create a reusable journal writing template.",
			func(tc *core.ToolContext, args createTemplateArgs) (any, error) {
				return store.CreateTemplate(tc.Context(), Template{UserID: tc.UserID(), Name: args.Name, Body: args.Body})
			}, tool.Mutating()),

		tool.MustFunction(ToolListTemplates, tool.CategoryTemplate,
			"List the user's journal templates.",
			func(tc *core.ToolContext, _ listTemplatesArgs) (any, error) {
				return store.ListTemplates(tc.Context(), tc.UserID())
			}),

		tool.MustFunction(ToolGetTemplate, tool.CategoryTemplate,
			"Fetch one journal template by id.",
			func(tc *core.ToolContext, args templateIDArgs) (any, error) {
				return wrap(store.GetTemplate(tc.Context(), tc.UserID(), args.TemplateID))
			}),

		tool.MustFunction(ToolSearchChatHistory, tool.CategoryChatHistory,
			"Search earlier conversations with the user.",
			func(tc *core.ToolContext, args searchArgs) (any, error) {
				return history.Search(tc.Context(), tc.UserID(), args.Query, args.Limit)
			}),
	}
}

// wrap turns ErrNotFound into a NOT_FOUND tool error so agents can tell a
// missing record from a backend failure.
func wrap[T any](v T, err error) (any, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, tool.NewError("NOT_FOUND", "record not found")
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
