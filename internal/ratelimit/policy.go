package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// RouteLimit is one entry of the policy file:
//
//	routes:
//	  - route: "POST /api/auth/login"
//	    window: 15m
//	    max: 5
type RouteLimit struct {
	Route  string        `koanf:"route"`
	Window time.Duration `koanf:"window"`
	Max    int           `koanf:"max"`
}

type policyFile struct {
	Routes []RouteLimit `koanf:"routes"`
}

// Policy overrides the built-in per-route limits. Routes are named
// "METHOD /chi/pattern". The zero Policy overrides nothing.
type Policy struct {
	routes map[string]Config
}

// LoadPolicy reads a YAML policy file. Every entry is validated and all
// problems are reported together.
func LoadPolicy(path string) (Policy, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Policy{}, fmt.Errorf("load rate limit policy %s: %w", path, err)
	}

	var pf policyFile
	if err := k.Unmarshal("", &pf); err != nil {
		return Policy{}, fmt.Errorf("decode rate limit policy %s: %w", path, err)
	}
	return NewPolicy(pf.Routes)
}

// NewPolicy builds a Policy from already-decoded entries.
func NewPolicy(entries []RouteLimit) (Policy, error) {
	p := Policy{routes: make(map[string]Config, len(entries))}
	var problems []string
	for i, e := range entries {
		name := normalizeRoute(e.Route)
		if name == "" {
			problems = append(problems, fmt.Sprintf("routes[%d]: route is required", i))
			continue
		}
		cfg := Config{Window: e.Window, MaxRequests: e.Max}
		if err := cfg.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("routes[%d] %q: %v", i, e.Route, strings.ReplaceAll(err.Error(), "\n", "; ")))
			continue
		}
		if _, dup := p.routes[name]; dup {
			problems = append(problems, fmt.Sprintf("routes[%d]: duplicate route %q", i, e.Route))
			continue
		}
		p.routes[name] = cfg
	}
	if len(problems) > 0 {
		return Policy{}, fmt.Errorf("invalid rate limit policy: %s", strings.Join(problems, ", "))
	}
	return p, nil
}

// For returns the override for route, or def.
func (p Policy) For(route string, def Config) Config {
	if c, ok := p.routes[normalizeRoute(route)]; ok {
		return c
	}
	return def
}

// Routes lists the route names the policy overrides.
func (p Policy) Routes() []string {
	out := make([]string, 0, len(p.routes))
	for r := range p.routes {
		out = append(out, r)
	}
	return out
}

// normalizeRoute upper-cases the method and collapses whitespace.
func normalizeRoute(r string) string {
	fields := strings.Fields(r)
	if len(fields) != 2 {
		return strings.Join(fields, " ")
	}
	return strings.ToUpper(fields[0]) + " " + fields[1]
}
