// Package mcp provides the Crater MCP gateway.
//
// The package exposes the Crater invoicing API as a catalog of MCP tools:
// customers, invoices, estimates, expenses, payments, items and company
// settings. Each tool validates its arguments against a JSON schema derived
// from a typed input record, calls Crater through the client package, and
// returns Crater's JSON response unchanged as text content.
//
// # Transports
//
//   - sse (default): HTTP on Config.Listen with GET /sse for the event stream,
//     POST /messages or POST /sse?sessionid= for client messages, and an
//     unauthenticated GET /healthz
//   - stdio: one session over stdin/stdout, intended for local agent launchers
//
// When Config.SharedSecret is set, SSE requests must present it in the
// Authorization header (optionally prefixed with "Bearer ") or in X-MCP-Token.
// Mismatches are answered with 401 before any tool runs. The secret can be
// replaced at runtime with Server.SetSharedSecret.
//
// # Errors
//
// Tool failures never surface as protocol errors. They are returned as tool
// results with IsError set, text of the form "Error <action>: <detail>", and a
// structured "error" object carrying error_code, kind and retryable. Crater
// authentication is handled by the session package: an expired token is
// refreshed once per call and the request replayed.
//
// # Constructor and lifecycle
//
// Use NewServer with NewServerRequest, then call Run with a cancellable
// context. Run blocks until context cancellation or a terminal serve error.
//
//	srv, err := mcp.NewServer(mcp.NewServerRequest{
//		Config: mcp.Config{
//			Listen:       ":3001",
//			SharedSecret: os.Getenv("MCP_SERVER_TOKEN"),
//			Crater: session.Config{
//				BaseURL:  "https://crater.example.com",
//				Email:    "agent@example.com",
//				Password: os.Getenv("CRATER_PASSWORD"),
//			},
//		},
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package mcp
