// Package password hashes and verifies user secrets with argon2id.
//
// Hashes are stored as self-describing PHC strings, so every record carries
// its own algorithm, cost parameters, and salt. Verification recomputes the
// digest with the stored parameters and compares it in constant time, then
// reports whether the record's parameters fall below the live configuration
// so callers can upgrade the hash opportunistically on login.
package password
