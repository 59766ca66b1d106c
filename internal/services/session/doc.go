// Package session is the Cryptographic Session Manager.
//
// It owns the device identity and prekeys (through the identity and prekey
// services), establishes one session per peer device from a prekey bundle,
// turns envelopes into opaque payloads and back, and derives the safety
// numbers users compare out of band.
//
// Two payload ciphers exist. ModeEncoding is a reversible encoding with no
// confidentiality; ModeAEAD derives a per-session key from both identities
// and seals with XChaCha20-Poly1305. Both keep the same session lifecycle.
package session
