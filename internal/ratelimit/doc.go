// Package ratelimit is a fixed-window request limiter keyed by client address
// and route.
//
// Each key owns one record: a request count and the instant its window ends.
// The first request after the window ends starts a new window with count 1.
// A background sweep drops records whose window has ended so the map only
// holds keys that are currently being limited or counted.
//
// This is a single-instance, in-memory limiter. Behind a load balancer with N
// replicas a client effectively gets up to N times the limit, and a client
// can send up to 2x the limit across a window boundary. It is defense in
// depth, not a substitute for upstream (WAF/CDN) rate limiting.
package ratelimit
