package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"cipherchat/internal/crypto"
	"cipherchat/internal/errs"
	"cipherchat/internal/util/memzero"
)

const (
	// The current supported version of the sealing parameters stored on disk.
	keystoreFormatVersion = 1

	checkPlaintext = "cipherchat-keystore"
)

// ErrWrongPassphrase is returned when the passphrase does not open the store.
var ErrWrongPassphrase = errs.Wrap(errs.ErrUnauthorized, errors.New("wrong passphrase or corrupted keystore"))

// kdfParams is the persisted JSON structure holding the KDF parameters and a
// sealed check value used to detect a wrong passphrase early.
type kdfParams struct {
	V     int    `json:"v"`
	Salt  []byte `json:"salt"`
	N     int    `json:"scrypt_N"`
	R     int    `json:"scrypt_r"`
	P     int    `json:"scrypt_p"`
	Check []byte `json:"check"`
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }

// sealer seals individual records with a passphrase-derived key. The record
// key is bound as associated data so ciphertexts cannot be swapped.
type sealer struct {
	key []byte
}

// newSealer opens existing parameters (raw != nil) or creates fresh ones. It
// returns the sealer and, when created, the parameters to persist.
func newSealer(passphrase string, raw []byte) (*sealer, []byte, error) {
	if raw != nil {
		var p kdfParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, nil, err
		}
		if p.V > keystoreFormatVersion {
			return nil, nil, fmt.Errorf("unsupported keystore version %d", p.V)
		}
		key, err := scrypt.Key([]byte(passphrase), p.Salt, p.N, p.R, p.P, crypto.KeySize)
		if err != nil {
			return nil, nil, err
		}
		s := &sealer{key: key}
		if _, err := s.open("", p.Check); err != nil {
			memzero.Zero(key)
			return nil, nil, ErrWrongPassphrase
		}
		return s, nil, nil
	}

	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, nil, err
	}
	N, r, p := scryptParamsDefault()
	key, err := scrypt.Key([]byte(passphrase), salt[:], N, r, p, crypto.KeySize)
	if err != nil {
		return nil, nil, err
	}
	s := &sealer{key: key}
	check, err := s.seal("", []byte(checkPlaintext))
	if err != nil {
		return nil, nil, err
	}
	out, err := json.Marshal(kdfParams{V: keystoreFormatVersion, Salt: salt[:], N: N, R: r, P: p, Check: check})
	if err != nil {
		return nil, nil, err
	}
	return s, out, nil
}

func (s *sealer) seal(name string, value []byte) ([]byte, error) {
	return crypto.Seal(s.key, value, []byte(name))
}

func (s *sealer) open(name string, sealed []byte) ([]byte, error) {
	pt, err := crypto.Open(s.key, sealed, []byte(name))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
