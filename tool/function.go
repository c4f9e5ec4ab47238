package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/internal/schema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewFunction exposes a typed Go function as a tool.
//
// The parameter schema is derived from the Args struct (json and jsonschema
// tags). Before fn runs, the raw arguments are decoded strictly into Args and
// checked against its `validate` tags; both failures are reported as
// validation errors.
//
// Example:
//
//	type getArgs struct {
//	  JournalID string `json:"journal_id" validate:"required"`
//	}
//
//	def, err := tool.NewFunction("get_journal", tool.CategoryJournal, "Fetch one entry",
//	  func(tc *core.ToolContext, args getArgs) (any, error) {
//	    return store.GetEntry(tc.Context(), tc.UserID(), args.JournalID)
//	  })
func NewFunction[Args any](
	name string,
	category Category,
	description string,
	fn func(tc *core.ToolContext, args Args) (any, error),
	optFns ...func(d *Definition),
) (Definition, error) {
	var zero Args

	params, err := schema.Reflect(&zero)
	if err != nil {
		return Definition{}, fmt.Errorf("tool %s: %w", name, err)
	}

	def := Definition{
		Name:        name,
		Category:    category,
		Description: description,
		Parameters:  params,
		Executor: func(tc *core.ToolContext, raw json.RawMessage) (any, error) {
			var args Args

			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&args); err != nil {
				return nil, fmt.Errorf("%w: decode arguments: %v", core.ErrToolValidation, err)
			}

			if err := validate.Struct(&args); err != nil {
				var invalid *validator.InvalidValidationError
				if !errors.As(err, &invalid) {
					return nil, fmt.Errorf("%w: %v", core.ErrToolValidation, err)
				}
			}

			return fn(tc, args)
		},
	}

	for _, fn := range optFns {
		fn(&def)
	}

	return def, nil
}

// Mutating marks a function tool as writing to the store.
func Mutating() func(d *Definition) {
	return func(d *Definition) { d.Mutating = true }
}

// MustFunction is like NewFunction but panics on schema errors. It is meant
// for package level tool tables built from static types.
func MustFunction[Args any](
	name string,
	category Category,
	description string,
	fn func(tc *core.ToolContext, args Args) (any, error),
	optFns ...func(d *Definition),
) Definition {
	def, err := NewFunction(name, category, description, fn, optFns...)
	if err != nil {
		panic(err)
	}
	return def
}
