package httpmw

import "net/http"

// MaxBody limits request body size. Reads past the limit fail with
// *http.MaxBytesError; validate.Body turns that into a 413.
func MaxBody(bytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, bytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
