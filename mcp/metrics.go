package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type toolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func newToolMetrics(logger pslog.Logger) *toolMetrics {
	meter := otel.Meter("pkt.systems/cratermcp/mcp")
	m := &toolMetrics{}
	var err error

	m.calls, err = meter.Int64Counter(
		"cratermcp.tool.calls",
		metric.WithDescription("MCP tool invocations by tool and outcome"),
	)
	logMetricInitError(logger, "cratermcp.tool.calls", err)

	m.duration, err = meter.Float64Histogram(
		"cratermcp.tool.duration",
		metric.WithDescription("MCP tool invocation latency"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "cratermcp.tool.duration", err)
	return m
}

func (m *toolMetrics) record(ctx context.Context, tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	if m.calls != nil {
		m.calls.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

type transportMetrics struct {
	rejected metric.Int64Counter
}

func newTransportMetrics(logger pslog.Logger) *transportMetrics {
	meter := otel.Meter("pkt.systems/cratermcp/mcp")
	m := &transportMetrics{}
	var err error
	m.rejected, err = meter.Int64Counter(
		"cratermcp.transport.auth_rejected",
		metric.WithDescription("HTTP requests rejected by the shared-secret check"),
	)
	logMetricInitError(logger, "cratermcp.transport.auth_rejected", err)
	return m
}

func (m *transportMetrics) recordRejected(ctx context.Context, path string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.Add(metricContext(ctx), 1, metric.WithAttributes(attribute.String("path", path)))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
