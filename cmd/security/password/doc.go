// Package password hashes and verifies account passwords.
//
// New digests are Argon2id in the PHC-like encoding
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<hash>.
// Digests written by the previous bcrypt-based store ($2a$, $2b$, $2y$) are
// still accepted by Verify, and NeedsRehash reports them so callers can
// upgrade on the next successful login.
//
// Hash strings are treated as untrusted input: Verify refuses parameters that
// exceed the configured cost by a wide margin.
package password
