package httpmw

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/storefront-api/internal/log"
)

// test helpers

type capturedLog struct {
	msg    string
	fields []any
}

// flatLogger captures With() and Info() calls for test assertions.
// Returns itself from With() so all calls land in one place.
type flatLogger struct {
	mu    sync.Mutex
	infos []capturedLog
	withs [][]any
}

func newFlatLogger() *flatLogger {
	return &flatLogger{}
}

func (l *flatLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *flatLogger) Info(_ context.Context, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, capturedLog{msg: msg, fields: kv})
}

func (l *flatLogger) Debug(_ context.Context, msg string, kv ...any) {}
func (l *flatLogger) Warn(_ context.Context, msg string, kv ...any)  {}
func (l *flatLogger) Error(_ context.Context, _ error, msg string, kv ...any) {
}
func (l *flatLogger) Sync() error { return nil }

func (l *flatLogger) lastInfo() (capturedLog, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.infos) == 0 {
		return capturedLog{}, false
	}
	return l.infos[len(l.infos)-1], true
}

func (l *flatLogger) lastWith() ([]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.withs) == 0 {
		return nil, false
	}
	return l.withs[len(l.withs)-1], true
}

func (l *flatLogger) infoCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.infos)
}

// fieldValue extracts a value by key from a captured log's fields slice.
func fieldValue(fields []any, key string) (any, bool) {
	for i := 0; i+1 < len(fields); i += 2 {
		if k, ok := fields[i].(string); ok && k == key {
			return fields[i+1], true
		}
	}
	return nil, false
}

// flusherRecorder wraps httptest.ResponseRecorder with Flusher support.
type flusherRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flusherRecorder) Flush() {
	f.flushed = true
}

// hijackRecorder wraps httptest.ResponseRecorder with Hijacker support.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

// noHijackRecorder doesn't implement Hijacker.
type noHijackRecorder struct {
	*httptest.ResponseRecorder
}

// responseWriter unit tests

func newTestRW(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, ctx: context.Background()}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newTestRW(rec)

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rw.status, http.StatusNotFound)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("underlying recorder code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rw := newTestRW(httptest.NewRecorder())

	rw.WriteHeader(http.StatusTooManyRequests)
	rw.WriteHeader(http.StatusOK)

	if rw.status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rw.status)
	}
}

func TestResponseWriter_Write_DefaultsTo200(t *testing.T) {
	rw := newTestRW(httptest.NewRecorder())

	n, err := rw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 5 || rw.bytes != 5 {
		t.Fatalf("n = %d, bytes = %d, want 5", n, rw.bytes)
	}
	if rw.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.status)
	}
}

func TestResponseWriter_Write_AccumulatesBytes(t *testing.T) {
	rw := newTestRW(httptest.NewRecorder())

	rw.Write([]byte("aaa"))
	rw.Write([]byte("bbbbb"))
	rw.Write([]byte("cc"))

	if rw.bytes != 10 {
		t.Fatalf("bytes = %d, want 10", rw.bytes)
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	inner := &flusherRecorder{ResponseRecorder: httptest.NewRecorder()}
	newTestRW(inner).Flush()
	if !inner.flushed {
		t.Fatal("Flush not delegated to underlying writer")
	}

	// no Flusher underneath: must not panic
	newTestRW(&noHijackRecorder{ResponseRecorder: httptest.NewRecorder()}).Flush()
}

func TestResponseWriter_Hijack(t *testing.T) {
	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	if _, _, err := newTestRW(inner).Hijack(); err != nil || !inner.hijacked {
		t.Fatalf("Hijack not delegated: %v", err)
	}

	_, _, err := newTestRW(&noHijackRecorder{ResponseRecorder: httptest.NewRecorder()}).Hijack()
	if err == nil || !strings.Contains(err.Error(), "does not implement http.Hijacker") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResponseWriter_FinishWriteSpan_NilSpan(t *testing.T) {
	rw := &responseWriter{ctx: context.Background()}
	// Should not panic when writeSpan is nil
	rw.finishWriteSpan()
}

// schemeFromRequest

func TestSchemeFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		proto string
		url   string
		tls   bool
		want  string
	}{
		{"forwarded https", "https", "/", false, "https"},
		{"forwarded http", "http", "/", false, "http"},
		{"forwarded mixed case", "HTTPS", "/", false, "https"},
		{"forwarded list takes first", "https, http", "/", false, "https"},
		{"forwarded garbage falls through", "javascript", "/", false, "http"},
		{"forwarded newline injection", "https\r\nX-Evil: 1", "/", false, "http"},
		{"absolute url scheme", "", "https://api.example.com/", false, "https"},
		{"tls", "", "/", true, "https"},
		{"default", "", "/", false, "http"},
		{"forwarded beats tls", "http", "/", true, "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, http.NoBody)
			if tt.proto != "" {
				r.Header["X-Forwarded-Proto"] = []string{tt.proto}
			}
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			} else {
				r.TLS = nil
			}
			if got := schemeFromRequest(r); got != tt.want {
				t.Fatalf("scheme = %q, want %q", got, tt.want)
			}
		})
	}
}

// WithLogger

func TestWithLogger_EnrichesContext(t *testing.T) {
	fl := newFlatLogger()

	var ctxLogger log.Logger
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = log.FromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/products", http.NoBody)
	req.RemoteAddr = "192.168.1.100:54321"
	req = req.WithContext(WithClientIP(WithRequestID(req.Context(), "req-abc-123"), "203.0.113.9"))

	WithLogger(fl)(handler).ServeHTTP(httptest.NewRecorder(), req)

	if ctxLogger != log.Logger(fl) {
		t.Fatal("logger not set in context")
	}
	kv, ok := fl.lastWith()
	if !ok {
		t.Fatal("With() never called")
	}
	want := map[string]any{
		"http.request.method":  http.MethodGet,
		"url.path":             "/api/products",
		"request_id":           "req-abc-123",
		"client.address":       "203.0.113.9",
		"network.peer.address": "192.168.1.100",
		"url.scheme":           "http",
	}
	for k, v := range want {
		if got, _ := fieldValue(kv, k); got != v {
			t.Errorf("%s = %v, want %v", k, got, v)
		}
	}
}

func TestWithLogger_UnknownClient(t *testing.T) {
	fl := newFlatLogger()
	WithLogger(fl)(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	kv, _ := fl.lastWith()
	if v, _ := fieldValue(kv, "client.address"); v != UnknownClient {
		t.Fatalf("client.address = %v", v)
	}
}

// Security: verify no user-supplied data leaks into logger fields
func TestWithLogger_NoUserSuppliedDataInFields(t *testing.T) {
	fl := newFlatLogger()

	req := httptest.NewRequest(http.MethodGet, "/test?secret=hunter2", http.NoBody)
	req.Header.Set("User-Agent", "EvilBot/1.0")
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	req.Host = "evil.example.com"

	WithLogger(fl)(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

	kv, _ := fl.lastWith()
	for i := 1; i < len(kv); i += 2 {
		s, _ := kv[i].(string)
		if strings.Contains(s, "hunter2") || strings.Contains(s, "EvilBot") ||
			strings.Contains(s, "abc.def") || strings.Contains(s, "evil.example.com") {
			t.Errorf("user-supplied value %q found in logger fields", s)
		}
	}
}

// AccessLog

func withCtxLogger(l log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context(), l)))
	})
}

func TestAccessLog_LogsRequest(t *testing.T) {
	fl := newFlatLogger()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{}"))
	withCtxLogger(fl, AccessLog()(handler)).ServeHTTP(httptest.NewRecorder(), req)

	entry, ok := fl.lastInfo()
	if !ok {
		t.Fatal("no info log emitted")
	}
	if entry.msg != "http request" {
		t.Fatalf("msg = %q, want %q", entry.msg, "http request")
	}
	if v, _ := fieldValue(entry.fields, "http.response.status_code"); v != http.StatusCreated {
		t.Fatalf("status_code = %v, want 201", v)
	}
	if v, _ := fieldValue(entry.fields, "http.response.body.size"); v != int64(5) {
		t.Fatalf("body.size = %v, want 5", v)
	}
	if v, _ := fieldValue(entry.fields, "http.request.body.size"); v != int64(2) {
		t.Fatalf("request body.size = %v, want 2", v)
	}
	if v, _ := fieldValue(entry.fields, "http.server.request.duration"); v == nil {
		t.Fatal("duration missing")
	}
}

func TestAccessLog_DefaultStatus200(t *testing.T) {
	fl := newFlatLogger()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("implicit 200"))
	})

	withCtxLogger(fl, AccessLog()(handler)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/categories", http.NoBody))

	entry, _ := fl.lastInfo()
	if v, _ := fieldValue(entry.fields, "http.response.status_code"); v != 200 {
		t.Fatalf("status = %v, want 200", v)
	}
}

func TestAccessLog_SkipsHealthEndpoints(t *testing.T) {
	fl := newFlatLogger()
	for _, p := range []string{"/-/ready", "/-/healthy"} {
		withCtxLogger(fl, AccessLog()(okHandler())).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, http.NoBody))
	}
	if n := fl.infoCount(); n != 0 {
		t.Fatalf("health probes logged %d times", n)
	}
}

func TestAccessLog_NoLoggerInContext(t *testing.T) {
	rec := httptest.NewRecorder()
	// falls back to the no-op logger
	AccessLog()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAccessLog_WithChiRoutePattern(t *testing.T) {
	fl := newFlatLogger()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return withCtxLogger(fl, next) })
	r.Use(AccessLog())
	r.Patch("/api/admin/orders/{id}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/api/admin/orders/ord-42", http.NoBody))

	entry, ok := fl.lastInfo()
	if !ok {
		t.Fatal("no info log emitted")
	}
	if v, _ := fieldValue(entry.fields, "http.route"); v != "/api/admin/orders/{id}" {
		t.Fatalf("http.route = %v", v)
	}
}

func TestRoutePattern_FallsBackToURLPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody)
	if got := RoutePattern(r); got != "/nowhere" {
		t.Fatalf("RoutePattern = %q", got)
	}
}

func TestScope_EnrichesLogger(t *testing.T) {
	fl := newFlatLogger()
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	withCtxLogger(fl, Scope("login")(handler)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", http.NoBody))

	kv, _ := fl.lastWith()
	if v, _ := fieldValue(kv, "handler"); v != "login" || !called {
		t.Fatalf("handler field = %v, called = %v", v, called)
	}
}
