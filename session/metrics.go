package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

const (
	loginResultSuccess = "success"
	loginResultFailure = "failure"
	loginResultStatic  = "static"
	loginResultConfig  = "config_error"
)

type sessionMetrics struct {
	logins    metric.Int64Counter
	exhausted metric.Int64Counter
}

func newSessionMetrics(logger pslog.Logger) *sessionMetrics {
	meter := otel.Meter("pkt.systems/cratermcp/session")
	m := &sessionMetrics{}
	var err error

	m.logins, err = meter.Int64Counter(
		"cratermcp.session.login",
		metric.WithDescription("Crater login attempts by result"),
	)
	logMetricInitError(logger, "cratermcp.session.login", err)

	m.exhausted, err = meter.Int64Counter(
		"cratermcp.session.retry_exhausted",
		metric.WithDescription("Requests rejected with 401 after the re-login retry was spent"),
	)
	logMetricInitError(logger, "cratermcp.session.retry_exhausted", err)
	return m
}

func (m *sessionMetrics) recordLogin(ctx context.Context, result string) {
	if m == nil || m.logins == nil {
		return
	}
	m.logins.Add(metricContext(ctx), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *sessionMetrics) recordExhausted(ctx context.Context) {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.Add(metricContext(ctx), 1)
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
