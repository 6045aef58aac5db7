package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/cratermcp/client"
	"pkt.systems/cratermcp/internal/svcfields"
	"pkt.systems/pslog"
)

// ErrToolNotFound is returned by Dispatch for a name that is not in the
// catalog. No handler runs.
var ErrToolNotFound = errors.New("tool not found")

// Result is the explicit outcome of a tool handler: a pass-through JSON
// payload or a ToolError.
type Result struct {
	payload json.RawMessage
	err     *ToolError
}

// Success wraps a Crater response body.
func Success(payload json.RawMessage) Result {
	return Result{payload: payload}
}

// Failure classifies err into a ToolError.
func Failure(err error) Result {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Result{err: classifyToolError(err)}
}

// resultOf adapts the (payload, error) pair returned by client operations.
func resultOf(payload json.RawMessage, err error) Result {
	if err != nil {
		return Failure(err)
	}
	return Success(payload)
}

// Err returns the failure, or nil on success.
func (r Result) Err() *ToolError { return r.err }

// Payload returns the success payload.
func (r Result) Payload() json.RawMessage { return r.payload }

// Dispatcher looks up, validates, and runs catalog tools, mapping every
// outcome onto an MCP tool result.
type Dispatcher struct {
	registry *Registry
	logger   pslog.Logger
	metrics  *toolMetrics
	tracer   trace.Tracer
}

// NewDispatcher builds a dispatcher over registry.
func NewDispatcher(registry *Registry, logger pslog.Logger) *Dispatcher {
	logger = svcfields.WithSubsystem(logger, svcfields.ToolDispatch)
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		metrics:  newToolMetrics(logger),
		tracer:   otel.Tracer("pkt.systems/cratermcp/mcp"),
	}
}

// Registry returns the catalog the dispatcher serves.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs tool name with raw JSON arguments. Unknown tools return
// ErrToolNotFound; every other outcome, including validation failures and
// handler panics, is reported as a tool result with IsError set.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw json.RawMessage) (*mcpsdk.CallToolResult, error) {
	spec, ok := d.registry.lookup(name)
	if !ok {
		d.logger.Warn("mcp.tool.call.unknown", "tool", name)
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	cid := client.CorrelationIDFromContext(ctx)
	if cid == "" {
		cid = client.GenerateCorrelationID()
		ctx = client.WithCorrelationID(ctx, cid)
	}
	ctx, span := d.tracer.Start(ctx, "cratermcp.tool."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cratermcp.tool", name), attribute.String("cratermcp.cid", cid)),
	)
	defer span.End()
	logger := d.logger.With("tool", name, "cid", cid)
	if sc := span.SpanContext(); sc.HasTraceID() {
		logger = logger.With("trace_id", sc.TraceID().String())
	}

	start := time.Now()
	logger.Debug("mcp.tool.call.start")
	res := d.run(ctx, logger, spec, raw)
	elapsed := time.Since(start)

	if te := res.Err(); te != nil {
		span.SetStatus(codes.Error, te.Message)
		span.SetAttributes(attribute.String("cratermcp.error_kind", string(te.Kind)))
		d.metrics.record(ctx, name, string(te.Kind), elapsed)
		logger.Warn("mcp.tool.call.error", "kind", string(te.Kind), "code", te.Code, "error", te.Message, "elapsed", elapsed)
	} else {
		d.metrics.record(ctx, name, "success", elapsed)
		logger.Info("mcp.tool.call.success", "elapsed", elapsed, "bytes", len(res.Payload()))
	}
	return spec.envelope(res), nil
}

func (d *Dispatcher) run(ctx context.Context, logger pslog.Logger, spec *toolSpec, raw json.RawMessage) (res Result) {
	call, err := spec.prepare(raw)
	if err != nil {
		return Failure(err)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("mcp.tool.call.panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = Result{err: &ToolError{
				Kind:    ErrorKindInternal,
				Code:    "internal",
				Message: "unexpected failure",
			}}
		}
	}()
	return call(ctx)
}

// envelope maps a Result onto the MCP wire shape: one text content entry,
// with IsError set for failures.
func (t *toolSpec) envelope(res Result) *mcpsdk.CallToolResult {
	if te := res.Err(); te != nil {
		return &mcpsdk.CallToolResult{
			IsError:           true,
			Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("Error %s: %s", t.action, te.Message)}},
			StructuredContent: map[string]any{"error": te.envelope()},
		}
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: prettyJSON(res.Payload())}},
	}
}

func prettyJSON(payload json.RawMessage) string {
	if len(bytes.TrimSpace(payload)) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return string(payload)
	}
	return buf.String()
}
