package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RouteFinder maps a request to its route pattern for span and metric
// naming, so metrics do not explode in cardinality over path parameters.
type RouteFinder func(r *http.Request) (string, bool)

// Instrument wraps handlers with OpenTelemetry tracing and a request
// counter. Spans are named after the matched route when find resolves one.
func Instrument(service string, find RouteFinder, mp metric.MeterProvider) Middleware {
	meter := mp.Meter("httpmiddleware")
	requests, err := meter.Int64Counter("http.server.requests")
	if err != nil {
		requests = nil
	}

	return func(next http.Handler) http.Handler {
		counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests != nil {
				route := r.URL.Path
				if find != nil {
					if pattern, ok := find(r); ok {
						route = pattern
					}
				}
				requests.Add(r.Context(), 1,
					metric.WithAttributes(
						attribute.String("http.method", r.Method),
						attribute.String("http.route", route),
					),
				)
			}
			next.ServeHTTP(w, r)
		})

		return otelhttp.NewHandler(counted, service,
			otelhttp.WithMeterProvider(mp),
			otelhttp.WithSpanNameFormatter(func(op string, r *http.Request) string {
				if find != nil {
					if pattern, ok := find(r); ok {
						return r.Method + " " + pattern
					}
				}
				return op
			}),
		)
	}
}
