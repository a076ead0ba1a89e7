// Package api serves homie's JSON HTTP endpoints.
//
// # Routes
//
//	GET    /health
//	POST   /auth/register          password: {username, name, password}
//	                               passkey:  {name} then {tempId, response}
//	POST   /auth/login             password: {username, password}
//	                               passkey:  {} then {tempId, response}
//	GET    /auth/me                {user, inventories} or {user: null}
//	PATCH  /auth/me                {name}
//	POST   /auth/logout
//	GET    /api/inventories
//	POST   /api/inventories        {name?}
//	GET    /api/inventories/{id}
//	PATCH  /api/inventories/{id}   owner only
//	DELETE /api/inventories/{id}   owner only; the document is kept
//	GET    /api/inventories/{id}/members
//	POST   /api/inventories/{id}/members          owner only, {userId}
//	DELETE /api/inventories/{id}/members/{uid}    owner only
//	GET    /api/inventories/{id}/possible-members owner only
//
// The /api routes require a session cookie. Errors are {"error": message}.
//
// When an operator secret is configured, /admin/api exposes user and
// inventory listings and session revocation behind HS256 bearer tokens.
// Revocations and sweeps are recorded in an audit trail, readable at
// GET /admin/api/audit (filters: actor, action, target, since, limit).
package api
