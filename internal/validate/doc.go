// Package validate turns raw request bodies into a checked, sanitized payload
// tree.
//
// A body goes through three steps: Parse builds a Node tree, Validate checks
// it against a declared Schema and reports every violation with a dotted
// field path, and Sanitize HTML-escapes free text so it is safe to echo.
// Body wires the three into a guard and hands handlers the sanitized tree.
package validate
