package httpmw

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	DefaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	DefaultCORSHeaders = []string{"Content-Type", "Authorization", "X-Request-Id"}
)

const DefaultCORSMaxAge = 24 * time.Hour

// CORSOptions configures the origin guard. Zero values fall back to the
// defaults above.
type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

// CORS echoes the request Origin back only when it is in the allow-list, and
// answers every OPTIONS request with 200 and no body without calling next.
func CORS(opts CORSOptions) Middleware {
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	methods := opts.AllowedMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	headers := opts.AllowedHeaders
	if len(headers) == 0 {
		headers = DefaultCORSHeaders
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCORSMaxAge
	}

	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")
	maxAgeSecs := strconv.Itoa(int(maxAge / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()

			// responses differ per Origin, caches must key on it
			h.Add("Vary", "Origin")

			if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := allowed[strings.ToLower(origin)]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", maxAgeSecs)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
