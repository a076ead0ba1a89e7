// Package auth authenticates homie requests.
//
// # Session Cookie
//
// Browsers authenticate with an opaque session id in an HttpOnly cookie
// (auth.cookie_name, default "session"). Gate.Require resolves the cookie on
// every request:
//
//   - no cookie: 401 "Unauthorized"
//   - unknown or expired session: 401 "Session expired", cookie cleared
//   - session whose user is gone: 401 "User not found", cookie cleared
//
// A successful request slides the session deadline forward by the TTL and
// rewrites the cookie. The resolved Principal is available to handlers via
// FromContext.
//
// # WebSocket Handshakes
//
// Upgrader sits in front of the router and handles every request that asks
// for a WebSocket upgrade. Only sync.path may be upgraded; anything else gets
// a bare 404. The cookie is resolved without refreshing the session, and any
// failure is answered with a raw status line on the hijacked socket so no
// upgrade ever half-completes. An accepted socket is handed to a SyncHandler
// and trusted for its lifetime.
//
// # Operator Tokens
//
// The operator API uses HS256 JWTs signed with auth.jwt_secret. The "sub"
// claim names the operator; BearerMiddleware puts it in the request context.
package auth
