// Package client is the Go SDK for the Crater invoicing REST API (/api/v1).
//
// A Client groups operations by resource kind. Every call asks the supplied
// *session.Manager for a bearer token, sends JSON, and returns the response
// body unchanged as json.RawMessage so callers can forward it without
// re-shaping.
//
//	sess, err := session.New(session.Config{
//	    BaseURL:  "https://crater.example.com",
//	    Email:    "admin@example.com",
//	    Password: os.Getenv("CRATER_PASSWORD"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cli, err := client.New(sess.BaseURL(), sess)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	page, err := cli.Customers().List(ctx, client.ListParams{Limit: 10})
//
// # Authentication
//
// When Crater answers 401 the client hands the request to
// session.Manager.HandleUnauthorized, which re-logs-in at most once and replays
// the request. A second 401 is returned as *session.AuthenticationError.
//
// # Errors
//
// Any other status >= 300 is returned as *RemoteError carrying the status, the
// raw body, and the Laravel "message" field when present. Transport failures
// are wrapped with the method and path.
//
// # Correlation
//
// Each request carries an X-Correlation-ID header. Use WithCorrelationID to
// propagate an identifier from the caller; otherwise a UUIDv7 is generated per
// request.
package client
