// Package password implements credential hashing and verification with
// Argon2id.
//
// # Output format
//
// Hashes are encoded as PHC strings with unpadded base64 fields:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Stored hashes carry their own parameters, so [Hasher.Verify] works
// across parameter upgrades. [Hasher.NeedsRehash] reports whether a
// stored hash is weaker than the hasher's current configuration; the
// caller re-hashes on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy and
// storage belong to the engine and its user provider.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
