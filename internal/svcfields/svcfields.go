package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the canonical key for subsystem tags.
const SubsystemKey = pslog.TrustedString("sys")

// Subsystem names shared by the session layer, the Crater client, and the MCP
// gateway.
const (
	SessionAuth   = "session.auth"
	ClientHTTP    = "client.crater"
	ToolDispatch  = "mcp.tool.dispatch"
	TransportHTTP = "mcp.transport.http"
	TransportIO   = "mcp.transport.stdio"
	Lifecycle     = "server.lifecycle.mcp"
	Telemetry     = "server.telemetry"
	ConfigReload  = "cli.config.reload"
)

// Subsystem builds a dot-delimited subsystem path from the supplied parts while
// skipping empty fragments.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem attaches a subsystem tag to every log entry. A nil logger is
// replaced by a no-op logger so callers never have to guard.
func WithSubsystem(logger pslog.Logger, subsystem ...string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	sys := Subsystem(subsystem...)
	if sys == "" {
		return logger
	}
	return logger.With(SubsystemKey, sys)
}
