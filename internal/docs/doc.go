// Package docs hosts replicated documents.
//
// A document is an ordered log of opaque change payloads. The server assigns
// each change the next sequence number, persists it, and relays it to every
// live subscriber of the document except the connection that produced it.
// Clients that fall behind, or whose buffer overflowed, replay from their
// last seen sequence with Changes.
//
// Documents know nothing about inventories or users; access is decided by
// callers before they subscribe or append.
package docs
