package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/internal/schema"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/model"
)

// RegistryOptions configure dispatch behaviour.
type RegistryOptions struct {
	// Timeout bounds each executor run. Zero disables the bound.
	Timeout time.Duration
	Logger  logging.Logger
}

// Registry is the immutable tool catalog. It is safe for concurrent use.
type Registry struct {
	defs  map[string]Definition
	order []string
	opts  RegistryOptions
}

// NewRegistry validates and freezes the given definitions. Names must be
// unique and non-empty and every definition needs an executor.
func NewRegistry(defs []Definition, optFns ...func(o *RegistryOptions)) (*Registry, error) {
	opts := RegistryOptions{
		Timeout: 30 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	r := &Registry{
		defs:  make(map[string]Definition, len(defs)),
		order: make([]string, 0, len(defs)),
		opts:  opts,
	}

	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("tool definition without name")
		}
		if d.Executor == nil {
			return nil, fmt.Errorf("tool %s has no executor", d.Name)
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", d.Name)
		}
		if d.Parameters == nil {
			d.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}

	return r, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns every tool name in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the model declarations for names, or for every tool when
// names is empty. Unknown names are skipped.
func (r *Registry) Definitions(names ...string) []model.ToolDefinition {
	if len(names) == 0 {
		names = r.order
	}

	out := make([]model.ToolDefinition, 0, len(names))
	for _, n := range names {
		if d, ok := r.defs[n]; ok {
			out = append(out, d.Declaration())
		}
	}

	return out
}

// Catalog groups tool names by category, each list sorted.
func (r *Registry) Catalog() map[Category][]string {
	out := map[Category][]string{}
	for _, n := range r.order {
		c := r.defs[n].Category
		out[c] = append(out[c], n)
	}
	for c := range out {
		sort.Strings(out[c])
	}
	return out
}

// IsMutating reports whether name is a registered mutating tool.
func (r *Registry) IsMutating(name string) bool {
	return r.defs[name].Mutating
}

// Dispatch validates and executes call at most once. It never returns a Go
// error: every failure is folded into the Result.
func (r *Registry) Dispatch(ctx context.Context, call Call, caller core.Caller) Result {
	start := time.Now()
	logger := logging.With(r.opts.Logger, "tool", call.Name, "fc_id", call.ID, "agent", call.Agent.String())

	def, ok := r.defs[call.Name]
	if !ok {
		logger.Warn("tool.call.unknown")
		return failed(call, start, CodeUnknownTool, fmt.Sprintf("unknown tool %q", call.Name), nil)
	}

	args, verr := decodeArguments(call.Arguments)
	if verr == nil {
		verr = schema.Validate(args, def.Parameters)
	}
	if verr != nil {
		logger.Warn("tool.call.validation_failed", "error", verr.Error())
		return failed(call, start, CodeValidationError, fmt.Sprintf("parameter validation failed: %v", verr), verr)
	}

	raw := call.Arguments
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}

	logger.Debug("tool.call.start")

	payload, err := r.execute(ctx, def, call, caller, raw, logger)
	if err != nil {
		code := CodeExecutionError
		var te *Error
		switch {
		case errors.As(err, &te):
			code = te.Code
		case errors.Is(err, core.ErrToolValidation):
			code = CodeValidationError
		}
		logger.Error("tool.call.error", "code", code, "error", err.Error())
		return failed(call, start, code, err.Error(), nil)
	}

	logger.Info("tool.call.success", "duration_ms", time.Since(start).Milliseconds())

	return Result{
		CallID:    call.ID,
		Name:      call.Name,
		Success:   true,
		Payload:   payload,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
}

// DispatchFor dispatches call only when its tool belongs to allowed. Calls
// outside the subset are rejected as unknown before any validation.
func (r *Registry) DispatchFor(ctx context.Context, allowed []string, call Call, caller core.Caller) Result {
	for _, name := range allowed {
		if name == call.Name {
			return r.Dispatch(ctx, call, caller)
		}
	}

	r.opts.Logger.Warn("tool.call.denied", "tool", call.Name, "agent", call.Agent.String())

	return failed(call, time.Now(), CodeUnknownTool, fmt.Sprintf("unknown tool %q", call.Name), nil)
}

type execOutcome struct {
	payload any
	err     error
}

// execute runs the executor in its own goroutine so a per-call timeout can
// be enforced. A timed out executor is abandoned, not retried.
func (r *Registry) execute(
	ctx context.Context,
	def Definition,
	call Call,
	caller core.Caller,
	raw json.RawMessage,
	logger logging.Logger,
) (any, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	tc := core.NewToolContext(ctx, caller, call.Agent, call.ID, logger)
	done := make(chan execOutcome, 1)

	go func() {
		var out execOutcome
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("tool.call.panic", "recover", rec, "stack", string(debug.Stack()))
				out = execOutcome{err: fmt.Errorf("%w: panic: %v", core.ErrToolExecution, rec)}
			}
			done <- out
		}()
		out.payload, out.err = def.Executor(tc, raw)
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			return nil, r.contextError(ctx)
		}
		return out.payload, out.err
	case <-ctx.Done():
		return nil, r.contextError(ctx)
	}
}

func (r *Registry) contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out after %s", core.ErrToolExecution, r.opts.Timeout)
	}
	return fmt.Errorf("%w: %v", core.ErrToolExecution, ctx.Err())
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &schema.ValidationError{Message: fmt.Sprintf("arguments are not a JSON object: %v", err)}
	}
	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}

func failed(call Call, start time.Time, code, msg string, details any) Result {
	return Result{
		CallID:    call.ID,
		Name:      call.Name,
		Error:     &Error{Code: code, Message: msg, Details: details},
		ElapsedMS: time.Since(start).Milliseconds(),
	}
}
