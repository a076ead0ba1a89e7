// Package server wires homie together and runs it.
//
// New opens the SQLite store, picks a credential verifier for auth.mode
// (password, or passkey with a memory or Redis challenge store), and builds
// the HTTP handler:
//
//	otelhttp -> auth.Upgrader -> api router
//
// The upgrader claims WebSocket handshakes on sync.path and hands accepted
// sockets to docsync; everything else falls through to the router.
//
// Run listens on server.http_addr, or on the tailnet when tailscale.enabled,
// and runs the session sweeper. Cancelling its context shuts down: in-flight
// requests drain, then open sync sockets are closed and awaited, then the
// store is closed.
package server
