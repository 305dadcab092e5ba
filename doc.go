// Package authcore verifies user secrets against stored argon2id records
// and manages the server-side sessions that stand in for those secrets on
// every subsequent request.
//
// The Engine is the public surface: Login verifies a secret through a
// bounded memory-hard hashing pool and issues an opaque session token,
// Validate renews a session under sliding and absolute expiry, and the
// revocation calls end sessions immediately. Collaborators the core does
// not own — the credential store, the session backend, throttling, token
// transport — plug in through narrow interfaces and are selected once at
// startup.
//
// Failure behavior is deliberately blunt at the boundary: credential and
// session rejections are indistinguishable to callers, and a session whose
// backend cannot be reached is rejected, never accepted.
package authcore
