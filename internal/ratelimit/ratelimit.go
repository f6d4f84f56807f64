package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
)

const DefaultSweepInterval = 10 * time.Minute

// Config is the limit applied to one route.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

func (c Config) Validate() error {
	var errs []error
	if c.Window <= 0 {
		errs = append(errs, errors.New("window must be > 0"))
	}
	if c.MaxRequests < 1 {
		errs = append(errs, errors.New("max requests must be >= 1"))
	}
	return errors.Join(errs...)
}

// Key identifies one bucket. It is only ever used as a map key.
type Key struct {
	Client string
	Route  string
}

func (k Key) String() string { return k.Client + ":" + k.Route }

// Decision is the outcome of one Check. RetryAfter is whole seconds and is
// only set when the request is not allowed.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
}

type record struct {
	count   int
	resetAt time.Time
	// logged is set on the first denial in this window
	logged bool
}

// Store holds every live record. The zero value is not usable; use NewStore.
type Store struct {
	mu      sync.Mutex
	records map[string]*record

	now           func() time.Time
	sweepInterval time.Duration

	onDenied      func(Key)
	onFirstDenied func(Key)
	onSweep       func(evicted, remaining int)

	// process-wide cap on onFirstDenied calls, so a flood of rotating
	// client addresses cannot turn into a flood of log lines
	firstDeniedLimit *rate.Limiter
}

type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSweepInterval sets how often expired records are evicted. d <= 0
// disables the background sweep; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// WithOnDenied is called for every limited request, outside the store lock.
func WithOnDenied(fn func(Key)) Option {
	return func(s *Store) { s.onDenied = fn }
}

// WithOnFirstDenied is called once per key per window, subject to the
// process-wide WithFirstDeniedRate limit. Used for logging.
func WithOnFirstDenied(fn func(Key)) Option {
	return func(s *Store) { s.onFirstDenied = fn }
}

// WithOnSweep reports each sweep's result (metrics).
func WithOnSweep(fn func(evicted, remaining int)) Option {
	return func(s *Store) { s.onSweep = fn }
}

// WithFirstDeniedRate bounds how many onFirstDenied calls can happen per
// second across all keys. Defaults to 5/s with a burst of 20.
func WithFirstDeniedRate(perSecond float64, burst int) Option {
	return func(s *Store) { s.firstDeniedLimit = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewStore creates a Store and starts the sweep goroutine, which stops when
// ctx is cancelled.
func NewStore(ctx context.Context, opts ...Option) *Store {
	s := &Store{
		records:          make(map[string]*record),
		now:              time.Now,
		sweepInterval:    DefaultSweepInterval,
		firstDeniedLimit: rate.NewLimiter(5, 20),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sweepInterval > 0 {
		go s.sweepLoop(ctx)
	}
	return s
}

// Check counts one request against key and reports whether it may proceed.
// Reading and updating the record is a single critical section.
func (s *Store) Check(key Key, cfg Config) Decision {
	now := s.now()
	k := key.String()

	s.mu.Lock()
	rec, ok := s.records[k]
	if !ok || !now.Before(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(cfg.Window)}
		s.records[k] = rec
		d := decision(rec, cfg, true, now)
		s.mu.Unlock()
		return d
	}

	if rec.count < cfg.MaxRequests {
		rec.count++
		d := decision(rec, cfg, true, now)
		s.mu.Unlock()
		return d
	}

	first := !rec.logged
	rec.logged = true
	d := decision(rec, cfg, false, now)
	// release before calling hooks, they may do slow work
	s.mu.Unlock()

	if first && s.onFirstDenied != nil && s.firstDeniedLimit.AllowN(now, 1) {
		s.onFirstDenied(key)
	}
	if s.onDenied != nil {
		s.onDenied(key)
	}
	return d
}

func decision(rec *record, cfg Config, allowed bool, now time.Time) Decision {
	d := Decision{
		Allowed:   allowed,
		Limit:     cfg.MaxRequests,
		Remaining: max(cfg.MaxRequests-rec.count, 0),
		ResetAt:   rec.resetAt,
	}
	if !allowed {
		d.RetryAfter = retryAfterSeconds(rec.resetAt.Sub(now))
	}
	return d
}

// retryAfterSeconds rounds up so a client that waits exactly that long is
// never still inside the window. Always at least 1.
func retryAfterSeconds(left time.Duration) int {
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Len is the number of records currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep removes every record whose window has ended and returns how many
// were removed. Records still inside their window are never touched.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	evicted := 0
	for k, rec := range s.records {
		if !now.Before(rec.resetAt) {
			delete(s.records, k)
			evicted++
		}
	}
	remaining := len(s.records)
	s.mu.Unlock()

	if s.onSweep != nil {
		s.onSweep(evicted, remaining)
	}
	return evicted
}

func (s *Store) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Guard limits requests per client address and chi route pattern.
func (s *Store) Guard(cfg Config) httpmw.Middleware {
	return s.GuardFunc(cfg, nil)
}

// GuardFunc is Guard with a custom route label. routeFn == nil uses the chi
// route pattern, so /orders/1 and /orders/2 share one bucket.
func (s *Store) GuardFunc(cfg Config, routeFn func(*http.Request) string) httpmw.Middleware {
	if routeFn == nil {
		routeFn = httpmw.RoutePattern
	}
	limit := strconv.Itoa(cfg.MaxRequests)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := Key{Client: httpmw.ClientKey(r.Context()), Route: routeFn(r)}
			d := s.Check(key, cfg)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.UnixMilli(), 10))

			if !d.Allowed {
				apierror.Write(w, r, apierror.RateLimited(d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
