// Package httpmiddleware provides the HTTP middleware stack for the pricing
// service: panic recovery, request IDs, CORS, rate limiting, request logging,
// and OpenTelemetry instrumentation.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware = func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware in the list is the
// outermost: Wrap(h, a, b) serves requests as a(b(h)).
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
