// Package store provides sealed local persistence for cipherchat's key
// material.
//
// Two SecureStorage backends are available, a directory of atomically
// replaced record files (FileKV) and a single bbolt database (BoltKV).
// Both seal every value with XChaCha20-Poly1305 under a key derived once
// from the user's passphrase with scrypt; the salt and cost parameters are
// stored alongside the records.
//
// KeyStore layers the identity, prekey, session and verification records on
// top of any SecureStorage, serialising them as JSON.
package store
