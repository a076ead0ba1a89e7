// Package account orchestrates registration, login, profile edits and
// logout.
//
// The credential verifier decides who someone is; this package decides what
// happens next. A verified registration is written in one transaction that
// creates the user, an optional passkey, the user's first inventory and a
// session, so a failure anywhere leaves nothing behind. Verifiers that need a
// second round trip (passkeys) return a challenge instead, and the caller
// sends the signed response back through the same method.
package account
