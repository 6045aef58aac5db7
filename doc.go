// Package cratermcp exposes the process-level configuration and telemetry for
// the Crater MCP server, a gateway that lets MCP agents drive a Crater
// invoicing installation (customers, invoices, estimates, expenses, payments,
// items and settings) through a fixed catalog of tools.
//
// The moving parts live in subpackages:
//
//   - session holds the Crater bearer token and performs logins, including the
//     single re-login that follows a 401
//   - client issues the REST calls under /api/v1 and returns bodies unchanged
//   - mcp validates tool arguments, dispatches them to client, and serves the
//     catalog over SSE or stdio
//
// # Running the gateway
//
// Config collects every setting the cratermcp command accepts. Validate fills
// in defaults (Crater at http://localhost, SSE on :3001, device name
// "mcp-server", 30s request timeout) and rejects inconsistent combinations:
//
//	cfg := cratermcp.Config{
//	    CraterURL: "https://crater.example.com",
//	    Email:     "agent@example.com",
//	    Password:  os.Getenv("CRATER_PASSWORD"),
//	    MCPToken:  os.Getenv("MCP_SERVER_TOKEN"),
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	srv, err := mcp.NewServer(mcp.NewServerRequest{Config: cfg.MCPConfig(), Logger: logger})
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
//
// Credentials are either an email and password pair, which allows transparent
// re-login, or a pre-issued API token, which is used as-is. When both are set
// the token is tried first and the password login refreshes it on 401.
//
// # Telemetry
//
// StartTelemetry wires OpenTelemetry tracing (OTLP over grpc or http), a
// Prometheus /metrics endpoint, optional Go runtime metrics and a pprof
// listener. Everything is off by default. Tool calls, logins and rejected
// gateway requests are recorded as cratermcp.* metrics.
//
// # Configuration files
//
// The command reads an optional YAML file, $HOME/.cratermcp/config.yaml by
// default (see DefaultConfigDir). Changes to mcp.token in that file are
// picked up while the server runs.
package cratermcp
