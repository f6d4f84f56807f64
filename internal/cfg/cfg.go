package cfg

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/storefront-api/internal/auth"
	"github.com/keithlinneman/storefront-api/internal/log"
)

// EnvPrefix is prepended to every flag name when reading the environment.
const EnvPrefix = "STOREFRONT_"

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	JWTSecret   string
	TokenTTL    time.Duration
	TokenIssuer string

	AllowedOrigins  string
	Hardened        bool
	TrustedHops     int
	MaxBodyBytes    int64
	SweepInterval   time.Duration
	RateLimitPolicy string

	SeedCatalog       bool
	AdminUsername     string
	AdminEmail        string
	AdminPasswordHash string

	DrainDelay      time.Duration
	ShutdownTimeout time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HS256 signing secret (at least 32 bytes)")
	fs.DurationVar(&c.TokenTTL, "token-ttl", auth.DefaultTTL, "lifetime of issued tokens")
	fs.StringVar(&c.TokenIssuer, "token-issuer", "storefront-api", "iss claim for issued tokens (empty disables the check)")

	fs.StringVar(&c.AllowedOrigins, "allowed-origins", "", "comma separated CORS origins allowed to read responses")
	fs.BoolVar(&c.Hardened, "hardened", false, "send Strict-Transport-Security (only behind HTTPS)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted reverse proxies in X-Forwarded-For (0..8)")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 64<<10, "largest accepted request body in bytes")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", time.Minute, "how often expired rate-limit windows are evicted")
	fs.StringVar(&c.RateLimitPolicy, "ratelimit-policy", "", "YAML file with per-route rate limits")

	fs.BoolVar(&c.SeedCatalog, "seed-catalog", true, "load the demo catalog into the in-memory store")
	fs.StringVar(&c.AdminUsername, "admin-username", "admin", "username of the seeded admin account")
	fs.StringVar(&c.AdminEmail, "admin-email", "", "email of the seeded admin account")
	fs.StringVar(&c.AdminPasswordHash, "admin-password-hash", "", "bcrypt hash for the seeded admin account (empty skips seeding)")

	fs.DurationVar(&c.DrainDelay, "drain-delay", 15*time.Second, "how long readiness fails before the listeners close")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests on shutdown")
}

// LoadDotEnv reads KEY=value files into the process environment. Variables
// that are already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, redact(f.Name, f.Value.String()), key, redact(f.Name, envVal))
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, redact(f.Name, envVal), err)
			}
		}
	})
}

func redact(name, v string) string {
	if strings.Contains(name, "secret") || strings.Contains(name, "hash") {
		return "<redacted>"
	}
	return v
}

// Origins splits AllowedOrigins into its trimmed, non-empty entries.
func (c App) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Tokens. The secret itself never appears in an error.
	if len(c.JWTSecret) < auth.MinSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes (got %d)", auth.MinSecretLen, len(c.JWTSecret)))
	}
	if c.TokenTTL < time.Minute || c.TokenTTL > 30*24*time.Hour {
		errs = append(errs, fmt.Errorf("invalid TOKEN_TTL %s (must be 1m..720h)", c.TokenTTL))
	}

	// Edge
	for _, o := range c.Origins() {
		if o == "*" {
			errs = append(errs, fmt.Errorf("ALLOWED_ORIGINS may not contain a wildcard"))
			continue
		}
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			errs = append(errs, fmt.Errorf("ALLOWED_ORIGINS entry must be scheme://host[:port] (got %q)", o))
		}
	}
	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_HOPS %d (must be 0..8)", c.TrustedHops))
	}
	if c.MaxBodyBytes < 1<<10 || c.MaxBodyBytes > 10<<20 {
		errs = append(errs, fmt.Errorf("invalid MAX_BODY_BYTES %d (must be 1KiB..10MiB)", c.MaxBodyBytes))
	}
	if c.SweepInterval < time.Second {
		errs = append(errs, fmt.Errorf("invalid SWEEP_INTERVAL %s (must be at least 1s)", c.SweepInterval))
	}
	if c.RateLimitPolicy != "" {
		if _, err := os.Stat(c.RateLimitPolicy); err != nil {
			errs = append(errs, fmt.Errorf("RATELIMIT_POLICY %q: %w", c.RateLimitPolicy, err))
		}
	}

	// Seeded admin
	if c.AdminPasswordHash != "" {
		if c.AdminUsername == "" {
			errs = append(errs, fmt.Errorf("ADMIN_USERNAME required when ADMIN_PASSWORD_HASH is set"))
		}
		if _, err := bcrypt.Cost([]byte(c.AdminPasswordHash)); err != nil {
			errs = append(errs, fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash: %w", err))
		}
	}

	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_DELAY %s (must be >= 0)", c.DrainDelay))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_TIMEOUT %s (must be > 0)", c.ShutdownTimeout))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
