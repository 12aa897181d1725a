// Package session issues, validates and revokes bearer tokens.
//
// A token is a signed envelope (PASETO v4.public by default, JWT HS256 as
// an alternative) carrying the user id ("uid") and a session id ("sid").
// Each issued token is also recorded on the user document as a session
// entry holding only the token digest (cmd/security/token). Validation
// requires both a good signature and a live entry, so logout takes effect
// immediately and a revoked token never authenticates again.
package session
