package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/log"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

// Recover is the outermost error boundary. A panic anywhere inside is logged
// with its stack under a fresh error id, and the client gets the generic 500
// body with that id. onPanic, if set, runs after logging (metrics hook).
//
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
func Recover(logger log.Logger, onPanic func()) Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if e, ok := rec.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.WithStack(fmt.Errorf("panic: %w", e))
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				id := uuid.NewString()
				ctx := r.Context()
				// Recover sits outside RequestID, so the id is only on the response.
				reqID := RequestIDFromContext(ctx)
				if reqID == "" {
					reqID = w.Header().Get(DefaultRequestIDHeader)
				}
				logger.With(
					"error_id", id,
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", reqID,
				).Error(ctx, err, "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}

				apierror.WriteInternalID(w, id)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
