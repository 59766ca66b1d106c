package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
)

// Mode selects how envelopes are turned into payloads.
type Mode string

const (
	// ModeEncoding encodes envelopes reversibly. Payloads are not confidential.
	ModeEncoding Mode = "encoding"
	// ModeAEAD seals envelopes under a key shared by both identities.
	ModeAEAD Mode = "aead"
)

const (
	encodingPrefix = "e1."
	aeadPrefix     = "a1."
)

var (
	errWrongFormat = errors.New("payload format not recognised")
	errNoKey       = errors.New("session has no key")
)

// ParseMode maps a config string to a Mode; empty selects ModeEncoding.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeEncoding:
		return ModeEncoding, nil
	case ModeAEAD:
		return ModeAEAD, nil
	default:
		return "", fmt.Errorf("unknown cipher mode %q", s)
	}
}

type payloadCipher interface {
	seal(sess domain.Session, env domain.Envelope) (string, error)
	open(sess domain.Session, payload string) (domain.Envelope, error)
}

func cipherFor(m Mode) payloadCipher {
	if m == ModeAEAD {
		return aeadCipher{}
	}
	return encodingCipher{}
}

type encodingCipher struct{}

func (encodingCipher) seal(_ domain.Session, env domain.Envelope) (string, error) {
	b, err := cbor.Marshal(env)
	if err != nil {
		return "", err
	}
	return encodingPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func (encodingCipher) open(_ domain.Session, payload string) (domain.Envelope, error) {
	rest, ok := strings.CutPrefix(payload, encodingPrefix)
	if !ok {
		return domain.Envelope{}, errWrongFormat
	}
	b, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return domain.Envelope{}, err
	}
	var env domain.Envelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return domain.Envelope{}, err
	}
	return env, nil
}

type aeadCipher struct{}

func (aeadCipher) seal(sess domain.Session, env domain.Envelope) (string, error) {
	if len(sess.Key) != crypto.KeySize {
		return "", errNoKey
	}
	b, err := cbor.Marshal(env)
	if err != nil {
		return "", err
	}
	sealed, err := crypto.Seal(sess.Key, b, nil)
	if err != nil {
		return "", err
	}
	return aeadPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (aeadCipher) open(sess domain.Session, payload string) (domain.Envelope, error) {
	if len(sess.Key) != crypto.KeySize {
		return domain.Envelope{}, errNoKey
	}
	rest, ok := strings.CutPrefix(payload, aeadPrefix)
	if !ok {
		return domain.Envelope{}, errWrongFormat
	}
	sealed, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return domain.Envelope{}, err
	}
	b, err := crypto.Open(sess.Key, sealed, nil)
	if err != nil {
		return domain.Envelope{}, err
	}
	var env domain.Envelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return domain.Envelope{}, err
	}
	return env, nil
}
