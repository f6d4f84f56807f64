package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront-api/internal/health"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
	"github.com/keithlinneman/storefront-api/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	Version      string // X-App-Version response header; empty skips it
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	CORS         httpmw.CORSOptions
	Security     httpmw.SecurityOptions
	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64 // 0 uses DefaultMaxBodyBytes

	// APIRoutes mounts the business endpoints; Fallback then installs the
	// NotFound and MethodNotAllowed handlers.
	APIRoutes func(chi.Router)
	Fallback  func(chi.Router)
}
