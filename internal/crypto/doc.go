// Package crypto exposes the minimal primitives used by cipherchat.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - HKDF-SHA256 session key derivation (DeriveSessionKey)
//   - XChaCha20-Poly1305 sealing with a random nonce (Seal, Open)
//   - Short public-key fingerprints and numeric safety numbers
//     (Fingerprint, SafetyNumber)
//   - Base64 helpers for keys carried in bundles (B64, DecodeKey32)
//
// # Notes
//
// Key types are the fixed-size arrays defined in internal/domain. Callers
// should treat returned secrets as sensitive and wipe them with
// internal/util/memzero when practical.
package crypto
