package httpmw

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaxBody(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		payload string
		wantErr bool
	}{
		{"under limit", 1024, `{"email":"a@b.co"}`, false},
		{"exactly at limit", 16, strings.Repeat("x", 16), false},
		{"one over limit", 16, strings.Repeat("x", 17), true},
		{"zero limit rejects any byte", 0, "a", true},
		{"empty body", 8, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			var got []byte
			handler := MaxBody(tt.limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, readErr = io.ReadAll(r.Body)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(tt.payload))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if tt.wantErr {
				var maxErr *http.MaxBytesError
				if !errors.As(readErr, &maxErr) {
					t.Fatalf("err = %v (%T), want *http.MaxBytesError", readErr, readErr)
				}
				if maxErr.Limit != tt.limit {
					t.Fatalf("Limit = %d, want %d", maxErr.Limit, tt.limit)
				}
				return
			}
			if readErr != nil {
				t.Fatalf("read body: %v", readErr)
			}
			if string(got) != tt.payload {
				t.Fatalf("body = %q, want %q", got, tt.payload)
			}
		})
	}
}

func TestMaxBody_NilBody(t *testing.T) {
	called := false
	handler := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Body = nil
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatal("handler not called")
	}
}
