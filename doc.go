// Package auth provides the credential and session lifecycle of a small
// multi-user service: signed token issuance, refresh token rotation, one time
// email tokens, resource authorization and the request gate that resolves the
// calling principal.
//
// Tokens:
//   - TokenCodec signs and validates HMAC JWTs. Every token carries a purpose
//     claim so access tokens, email verification tokens and password reset
//     tokens can never be used in place of each other.
//   - EphemeralIssuer mints the one time tokens mailed to users. Reset tokens
//     fingerprint the current password hash and stop validating once the
//     password changes.
//
// Sessions:
//   - RefreshRegistry keeps at most one refresh token per principal. Rotate
//     consumes the presented token and returns a fresh one; concurrent rotations
//     of the same token yield exactly one winner.
//   - SessionGate reads the bearer token of each request and attaches the
//     principal to the fiber context. Invalid tokens resolve to anonymous; the
//     Require* middlewares decide what anonymous callers may reach.
//
// Authorization:
//   - Authorizer grants access to admins and to the owner of a resource, as
//     reported by a ResourceStore. Denials are reported to its ActivitySink.
//
// Activity sinks:
//   - ActivitySink is a best effort audit emitter. Service reports signup,
//     login, refresh, logout and password reset events; sink errors are logged
//     and never fail the operation.
package auth
