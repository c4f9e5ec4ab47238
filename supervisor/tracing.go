package supervisor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/journalmesh/agent"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/mask"
	"github.com/hupe1980/journalmesh/tool"
)

// startWorkflowSpan starts a span for one query.
func (s *Supervisor) startWorkflowSpan(ctx context.Context, workflowID string) (context.Context, trace.Span) {
	ctx, span := s.opts.Tracer.Start(ctx, "workflow.handle")
	span.SetAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.Int("workflow.max_rounds", s.opts.MaxRounds),
	)
	return ctx, span
}

// endWorkflowSpan ends the workflow span with its status.
func (s *Supervisor) endWorkflowSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("workflow.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow failed")
	}
	span.End()
}

// startRoundSpan starts a span for one coordinator round.
func (s *Supervisor) startRoundSpan(ctx context.Context, round int) (context.Context, trace.Span) {
	ctx, span := s.opts.Tracer.Start(ctx, "supervisor.round")
	span.SetAttributes(attribute.Int("round", round))
	return ctx, span
}

// endRoundSpan ends the round span.
func (s *Supervisor) endRoundSpan(span trace.Span, requests int, err error) {
	span.SetAttributes(attribute.Int("round.requests", requests))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startAgentSpan starts a span for one agent call. Agents are named by
// their display label only.
func (s *Supervisor) startAgentSpan(ctx context.Context, id core.AgentIdentity, round, index, step int) (context.Context, trace.Span) {
	ctx, span := s.opts.Tracer.Start(ctx, "agent.invoke")
	span.SetAttributes(
		attribute.String("agent.name", mask.DisplayNameOf(id)),
		attribute.Int("round", round),
		attribute.Int("delegation.index", index),
		attribute.Int("agent.step", step),
	)
	return ctx, span
}

// endAgentSpan ends the agent span with call info.
func (s *Supervisor) endAgentSpan(span trace.Span, out agent.Outcome, err error) {
	span.SetAttributes(
		attribute.Int("agent.tool_calls", len(out.ToolCalls)),
		attribute.Int64("agent.elapsed_ms", out.ElapsedMS()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent call failed")
	}
	span.End()
}

// startToolSpan starts a span for one tool call.
func (s *Supervisor) startToolSpan(ctx context.Context, id core.AgentIdentity, name string) (context.Context, trace.Span) {
	ctx, span := s.opts.Tracer.Start(ctx, "tool.dispatch")
	span.SetAttributes(
		attribute.String("tool.name", name),
		attribute.String("agent.name", mask.DisplayNameOf(id)),
	)
	return ctx, span
}

// endToolSpan ends the tool span with the result.
func (s *Supervisor) endToolSpan(span trace.Span, res tool.Result) {
	span.SetAttributes(attribute.Bool("tool.success", res.Success))
	if res.Error != nil {
		span.SetAttributes(attribute.String("tool.error_code", res.Error.Code))
		span.SetStatus(codes.Error, res.Error.Code)
	}
	span.End()
}
