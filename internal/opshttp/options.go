package opshttp

import (
	"net/http"

	"github.com/keithlinneman/storefront-api/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// Debug mounts extra read-only endpoints under their own paths, e.g.
	// "/debug/ratelimit".
	Debug   map[string]http.Handler
	OnPanic func() // Optional callback for when panics are recovered, e.g. to increment a prometheus counter.
}
