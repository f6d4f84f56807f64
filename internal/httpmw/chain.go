package httpmw

import (
	"net/http"
)

// Guard wraps the remainder of a request chain. A guard that does not call
// next must write the terminal response itself.
type Guard interface {
	Wrap(next http.Handler) http.Handler
}

// Middleware adapts a plain func(http.Handler) http.Handler to Guard.
type Middleware func(http.Handler) http.Handler

func (m Middleware) Wrap(next http.Handler) http.Handler { return m(next) }

// Chain applies guards so that the first guard in the
// list is the outermost, and the last is innermost, wrapping h.
func Chain(h http.Handler, guards ...Guard) http.Handler {
	wrapped := h

	// Apply in reverse: last guard in the slice wraps the handler first.
	for i := len(guards) - 1; i >= 0; i-- {
		if isNil(guards[i]) {
			continue
		}
		wrapped = guards[i].Wrap(wrapped)
	}

	return wrapped
}

// Compose folds guards into one Middleware, for routers that take
// func(http.Handler) http.Handler.
func Compose(guards ...Guard) Middleware {
	return func(next http.Handler) http.Handler {
		return Chain(next, guards...)
	}
}

func isNil(g Guard) bool {
	if g == nil {
		return true
	}
	m, ok := g.(Middleware)
	return ok && m == nil
}
