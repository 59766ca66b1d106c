package crypto

import (
	"bytes"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"cipherchat/internal/domain"
	"cipherchat/internal/util/memzero"
)

const sessionKeyInfo = "cipherchat-session-v1"

// DeriveSessionKey derives the symmetric key shared by two identities.
//
// Both parties compute DH(own, peer) and salt HKDF with the two public keys
// in sorted order, so each side arrives at the same 32-byte key.
func DeriveSessionKey(
	ourPriv domain.X25519Private,
	ourPub domain.X25519Public,
	peerPub domain.X25519Public,
) ([]byte, error) {
	shared, err := DH(ourPriv, peerPub)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(shared[:])

	lo, hi := ourPub[:], peerPub[:]
	if bytes.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	salt := make([]byte, 0, 64)
	salt = append(salt, lo...)
	salt = append(salt, hi...)

	r := hkdf.New(sha256.New, shared[:], salt, []byte(sessionKeyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
