// Package api implements the storefront business routes. Every route is
// mounted with its own explicit guard stack; handlers only ever see requests
// that passed it.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/auth"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
	"github.com/keithlinneman/storefront-api/internal/log"
	"github.com/keithlinneman/storefront-api/internal/ratelimit"
	"github.com/keithlinneman/storefront-api/internal/validate"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

// DefaultLimits are the per-route windows used when the policy file has no
// entry for a route. Keys are "METHOD pattern".
var DefaultLimits = map[string]ratelimit.Config{
	"GET /api/products":             {Window: time.Minute, MaxRequests: 60},
	"GET /api/categories":           {Window: time.Minute, MaxRequests: 60},
	"POST /api/auth/login":          {Window: 15 * time.Minute, MaxRequests: 5},
	"POST /api/auth/password-reset": {Window: 5 * time.Minute, MaxRequests: 3},
	"PUT /api/profile":              {Window: time.Minute, MaxRequests: 10},
	"POST /api/orders":              {Window: time.Minute, MaxRequests: 20},
}

type Options struct {
	Users    Users
	Catalog  Catalog
	Orders   Orders
	Notifier Notifier

	Auth    *auth.Manager
	Limiter *ratelimit.Store
	Policy  ratelimit.Policy

	Logger log.Logger

	// OnInvalid receives the route pattern of every rejected request body.
	OnInvalid func(route string)
	// OnLogin receives "success" or "invalid_credentials".
	OnLogin func(outcome string)
}

// API holds the handlers and their dependencies.
type API struct {
	users    Users
	catalog  Catalog
	orders   Orders
	notifier Notifier

	auth    *auth.Manager
	limiter *ratelimit.Store
	policy  ratelimit.Policy
	logger  log.Logger

	onInvalid func(string)
	onLogin   func(string)

	// dummyHash is compared against when the username does not exist so both
	// login failure paths cost one bcrypt comparison.
	dummyHash []byte
}

func NewAPI(opts Options) (*API, error) {
	if opts.Users == nil || opts.Catalog == nil || opts.Orders == nil {
		return nil, xerrors.New("api: Users, Catalog and Orders are required")
	}
	if opts.Auth == nil || opts.Limiter == nil {
		return nil, xerrors.New("api: Auth and Limiter are required")
	}
	if opts.Notifier == nil {
		return nil, xerrors.New("api: Notifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.OnInvalid == nil {
		opts.OnInvalid = func(string) {}
	}
	if opts.OnLogin == nil {
		opts.OnLogin = func(string) {}
	}
	dummy, err := newDummyHash()
	if err != nil {
		return nil, err
	}
	return &API{
		users:     opts.Users,
		catalog:   opts.Catalog,
		orders:    opts.Orders,
		notifier:  opts.Notifier,
		auth:      opts.Auth,
		limiter:   opts.Limiter,
		policy:    opts.Policy,
		logger:    opts.Logger,
		onInvalid: opts.OnInvalid,
		onLogin:   opts.OnLogin,
		dummyHash: dummy,
	}, nil
}

// RegisterRoutes attaches the business endpoints to r.
func (api *API) RegisterRoutes(r chi.Router) {
	r.With(api.limit("GET", "/api/products")).Get("/api/products", api.HandleListProducts)
	r.With(api.limit("GET", "/api/categories")).Get("/api/categories", api.HandleListCategories)

	r.With(
		api.limit("POST", "/api/auth/login"),
		api.body(loginSchema),
	).Post("/api/auth/login", api.HandleLogin)

	r.With(
		api.limit("POST", "/api/auth/password-reset"),
		api.body(passwordResetSchema),
	).Post("/api/auth/password-reset", api.HandlePasswordReset)

	r.With(api.auth.RequireAuth()).Get("/api/profile", api.HandleGetProfile)
	r.With(
		api.auth.RequireAuth(),
		api.limit("PUT", "/api/profile"),
		api.body(profileSchema),
	).Put("/api/profile", api.HandleUpdateProfile)

	r.With(
		api.auth.RequireAuth(),
		api.limit("POST", "/api/orders"),
		api.body(orderSchema),
	).Post("/api/orders", api.HandleCreateOrder)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(api.auth.RequireAuth(), api.auth.RequireAdmin())
		r.Get("/orders", api.HandleListOrders)
		r.With(api.body(orderStatusSchema)).Patch("/orders/{id}", api.HandleUpdateOrderStatus)
	})
}

// RegisterFallback answers unmatched routes and methods with JSON errors. It
// should be registered last.
func (api *API) RegisterFallback(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, apierror.NotFound(""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, apierror.MethodNotAllowed())
	})
}

// limit resolves the window for a route from the policy, falling back to
// DefaultLimits.
func (api *API) limit(method, pattern string) httpmw.Middleware {
	route := method + " " + pattern
	return api.limiter.Guard(api.policy.For(route, DefaultLimits[route]))
}

func (api *API) body(s validate.Schema) httpmw.Middleware {
	return validate.Body(s, validate.OnInvalid(api.onInvalid))
}

type dataResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	apierror.WriteJSON(w, status, dataResponse{Success: true, Data: data})
}
