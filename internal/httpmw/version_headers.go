package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VersionHeaders adds X-App-Version to every response and tags the span with
// it. An empty version disables the middleware.
func VersionHeaders(appVersion string) Middleware {
	return func(next http.Handler) http.Handler {
		if appVersion == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-App-Version", appVersion)
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(attribute.String("service.version", appVersion))
			}
			next.ServeHTTP(w, r)
		})
	}
}
