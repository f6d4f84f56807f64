// Package httpmw holds the request guards and ambient middleware of the
// public API server.
//
// A guard is anything that can wrap the rest of the chain (Guard). Chain
// composes an ordered list of guards around a handler with the first guard
// outermost; a guard that writes a response without calling next ends the
// request there. httpserver.NewHandler assembles the global order: security
// headers, CORS, panic recovery, request ID, client IP, tracing, version
// headers, metrics, logging, router. Per-route guards (rate limits, auth,
// body validation) live in their own packages and are attached by the router.
//
// User-supplied data (query strings, bodies, tokens, user-agent) is kept out
// of logs.
package httpmw
