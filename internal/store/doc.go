// Package store provides persistent storage for homie using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with one interface
// per concern:
//
//   - UserStore: user accounts
//   - CredentialStore: WebAuthn passkeys
//   - SessionStore: login sessions
//   - AccessStore: inventory ownership and membership
//   - DocumentStore: replicated documents as ordered change logs
//   - RegistrationStore: atomic creation of a whole new account
//
// SQLiteStore implements all of them in a single struct; consumers depend
// only on the slice they need.
//
// # SQLite Configuration
//
// Pragmas are set through the DSN so every pooled connection carries them:
//
//	foreign_keys(1), journal_mode(WAL), busy_timeout(5000)
//
// Write transactions begin IMMEDIATE, so concurrent writers queue on the
// database lock rather than failing on upgrade. Conflicting writes are
// resolved by keys and ON CONFLICT clauses, never by application locks.
//
// # Deletion
//
// Sessions, credentials, inventories and memberships cascade from users.
// Inventories do not reference documents: deleting an inventory's access
// record leaves its document and change log in place.
//
// # Error Handling
//
// Lookups return package sentinels (ErrUserNotFound, ErrSessionNotFound,
// ErrInventoryNotFound, ...) so callers can use errors.Is. Boolean results
// from update and delete methods report whether a row was affected.
package store
