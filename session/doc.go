// Package session implements server-side session records, the pluggable
// stores that persist them, and the manager that drives their lifecycle.
//
// A record lives behind an opaque CSPRNG token and is only ever mutated
// through the Manager: created on login (with anti-fixation regeneration),
// touched on every validated request (sliding expiry under an absolute
// ceiling), and deleted on logout, revocation, or expiry. Stores provide a
// narrow key-value contract with per-token atomicity; three backends ship
// in-tree (in-process map, Redis, SQL) and are selected at startup.
package session
