package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/storefront-api/internal/api"
	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/auth"
	"github.com/keithlinneman/storefront-api/internal/cfg"
	"github.com/keithlinneman/storefront-api/internal/health"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
	"github.com/keithlinneman/storefront-api/internal/opshttp"
	"github.com/keithlinneman/storefront-api/internal/ratelimit"
	"github.com/keithlinneman/storefront-api/internal/store"

	"github.com/keithlinneman/storefront-api/internal/httpserver"
	"github.com/keithlinneman/storefront-api/internal/log"
	"github.com/keithlinneman/storefront-api/internal/metrics"
	"github.com/keithlinneman/storefront-api/internal/otelx"
	"github.com/keithlinneman/storefront-api/internal/prof"
	v "github.com/keithlinneman/storefront-api/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// .env is optional, real environment variables take precedence
	if err := cfg.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv error:", err)
		os.Exit(1)
	}

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		if stackLvl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
			os.Exit(1)
		}
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSONFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.ShortCommit(),
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"allowed_origins", conf.Origins(),
		"hardened", conf.Hardened,
		"trusted_hops", conf.TrustedHops,
		"max_body_bytes", conf.MaxBodyBytes,
		"token_ttl", conf.TokenTTL,
		"ratelimit_policy", conf.RateLimitPolicy,
		"seed_catalog", conf.SeedCatalog,
	)

	var m *metrics.ServerMetrics = metrics.New()
	m.SetBuildInfoFromVersion("server", &vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.ShortCommit(),
			"source":    "go-agent",
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Insecure is true because we only export to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// storage
	var storeOpts []store.Option
	if conf.SeedCatalog {
		storeOpts = append(storeOpts, store.WithCatalog(store.DemoCategories, store.DemoProducts))
	}
	mem := store.NewMemory(storeOpts...)
	if conf.AdminPasswordHash != "" {
		admin, err := mem.AddUser(api.User{
			Username:     conf.AdminUsername,
			Email:        conf.AdminEmail,
			PasswordHash: conf.AdminPasswordHash,
			IsAdmin:      true,
		})
		if err != nil {
			L.Error(ctx, err, "failed to seed admin account")
			os.Exit(1)
		}
		L.Info(ctx, "seeded admin account", "user_id", admin.ID)
	}

	// per-route rate limits, falling back to the built-in defaults
	var policy ratelimit.Policy
	if conf.RateLimitPolicy != "" {
		policy, err = ratelimit.LoadPolicy(conf.RateLimitPolicy)
		if err != nil {
			L.Error(ctx, err, "failed to load rate limit policy", "path", conf.RateLimitPolicy)
			os.Exit(1)
		}
		L.Info(ctx, "loaded rate limit policy", "routes", policy.Routes())
	}

	limiter := ratelimit.NewStore(ctx,
		ratelimit.WithSweepInterval(conf.SweepInterval),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(k ratelimit.Key) {
			m.IncRateLimitDenied(k.Route)
		}),
		// logging is itself rate limited so a flood cannot flood the logs
		ratelimit.WithOnFirstDenied(func(k ratelimit.Key) {
			L.Warn(ctx, "rate limit triggered", "client", k.Client, "route", k.Route)
		}),
		ratelimit.WithOnSweep(m.ObserveRateLimitSweep),
	)

	tokens, err := auth.NewManager(auth.Options{
		Secret:    []byte(conf.JWTSecret),
		TTL:       conf.TokenTTL,
		Issuer:    conf.TokenIssuer,
		OnFailure: m.IncAuthFailure,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create token manager")
		os.Exit(1)
	}

	storefront, err := api.NewAPI(api.Options{
		Users:     mem,
		Catalog:   mem,
		Orders:    mem,
		Notifier:  store.LogNotifier{Logger: L.With("component", "notifier")},
		Auth:      tokens,
		Limiter:   limiter,
		Policy:    policy,
		Logger:    L,
		OnInvalid: m.IncValidationFailure,
		OnLogin:   m.IncLoginAttempt,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create api")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// both the shutdown gate and the store must pass
	readiness := health.All(
		gate.Probe(),
		health.Named("store", health.Timeout(health.CheckFunc(func(ctx context.Context) error {
			_, err := mem.Categories(ctx)
			return err
		}), time.Second)),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Version:      vi.Version,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		CORS:         httpmw.CORSOptions{AllowedOrigins: conf.Origins()},
		Security:     httpmw.SecurityOptions{Hardened: conf.Hardened},
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		MaxBodyBytes: conf.MaxBodyBytes,
		APIRoutes:    storefront.RegisterRoutes,
		Fallback:     storefront.RegisterFallback,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin/ops listener serves metrics, health checks, pprof and debug views.
	// requests from public addresses are rejected in middleware
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
		Debug: map[string]http.Handler{
			"/debug/ratelimit": rateLimitDebug(limiter, policy),
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// worst case systemd kills the process after its timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed", "drain_delay", conf.DrainDelay)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.DrainDelay):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := siteHTTPStop(shutdownCtx); err != nil {
			L.Error(context.Background(), err, "api http server shutdown")
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := opsHTTPStop(shutdownCtx); err != nil {
			L.Error(context.Background(), err, "ops http server shutdown")
			return err
		}
		return nil
	})
	code := 0
	if g.Wait() != nil {
		code = 1
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(code)
}

// rateLimitDebug reports limiter occupancy and the configured overrides.
func rateLimitDebug(limiter *ratelimit.Store, policy ratelimit.Policy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apierror.WriteJSON(w, http.StatusOK, map[string]any{
			"trackedWindows": limiter.Len(),
			"policyRoutes":   policy.Routes(),
		})
	})
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
