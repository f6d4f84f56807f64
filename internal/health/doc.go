// Package health holds the liveness and readiness probes of the storefront
// API and the handlers that expose them.
//
// Probes compose with [All] (AND) and [Any] (OR); [Fixed] is static and
// [CheckFunc] adapts a plain function. [Timeout] bounds a slow dependency
// check, [Named] prefixes its failure reason.
//
// [ShutdownGate] coordinates graceful shutdown: once set, readiness fails
// immediately so load balancers stop routing new traffic while in-flight
// requests drain.
//
// [HealthzHandler] and [ReadyzHandler] serve the admin listener. [Routes]
// mounts /-/ping, /-/healthy and /-/ready on the public router.
package health
