// Package auth issues and verifies the bearer tokens of the public API.
//
// Verification establishes identity only. Permission checks such as
// RequireAdmin are separate guards and every admin route must mount one
// explicitly after RequireAuth.
package auth
