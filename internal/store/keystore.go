package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

const (
	identityKey     = "identity"
	prekeyPrefix    = "prekey/"
	sessionPrefix   = "session/"
	verifyPrefix    = "verify/"
	verifySeparator = "/"
)

// KeyStore persists identity, prekeys, sessions and verification marks as
// JSON records in a SecureStorage.
type KeyStore struct {
	kv domain.SecureStorage
	mu sync.Mutex
}

// Compile-time assertion.
var _ domain.KeyStore = (*KeyStore)(nil)

// NewKeyStore wraps kv.
func NewKeyStore(kv domain.SecureStorage) *KeyStore { return &KeyStore{kv: kv} }

func (s *KeyStore) getJSON(key string, out any) (bool, error) {
	b, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *KeyStore) putJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.kv.Put(key, b)
}

// ---------- Identity ----------

func (s *KeyStore) SaveIdentity(id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(identityKey, id)
}

func (s *KeyStore) LoadIdentity() (domain.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id domain.Identity
	ok, err := s.getJSON(identityKey, &id)
	return id, ok, err
}

// ---------- Prekeys ----------

func (s *KeyStore) SavePrekeys(prekeys []domain.Prekey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pk := range prekeys {
		if pk.ID == "" {
			return fmt.Errorf("%w: prekey without id", errs.ErrValidation)
		}
		if err := s.putJSON(prekeyPrefix+pk.ID.String(), pk); err != nil {
			return err
		}
	}
	return nil
}

func (s *KeyStore) LoadPrekey(id domain.PrekeyID) (domain.Prekey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pk domain.Prekey
	ok, err := s.getJSON(prekeyPrefix+id.String(), &pk)
	return pk, ok, err
}

// ListPrekeys returns every stored prekey, oldest first.
func (s *KeyStore) ListPrekeys() ([]domain.Prekey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys(prekeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Prekey, 0, len(keys))
	for _, k := range keys {
		var pk domain.Prekey
		ok, err := s.getJSON(k, &pk)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pk)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedUTC < out[j].CreatedUTC })
	return out, nil
}

func (s *KeyStore) MarkPrekeyUsed(id domain.PrekeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pk domain.Prekey
	ok, err := s.getJSON(prekeyPrefix+id.String(), &pk)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: prekey %s", errs.ErrNotFound, id)
	}
	pk.Used = true
	return s.putJSON(prekeyPrefix+id.String(), pk)
}

// ---------- Sessions ----------

func (s *KeyStore) SaveSession(sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(sessionPrefix+sess.ID.String(), sess)
}

func (s *KeyStore) LoadSession(id domain.SessionID) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sess domain.Session
	ok, err := s.getJSON(sessionPrefix+id.String(), &sess)
	return sess, ok, err
}

func (s *KeyStore) ListSessions() ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys(sessionPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(keys))
	for _, k := range keys {
		var sess domain.Session
		ok, err := s.getJSON(k, &sess)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *KeyStore) DeleteSession(id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(sessionPrefix + id.String())
}

// ---------- Verification ----------

func verifyKey(peer domain.UserID, device domain.DeviceID) string {
	return verifyPrefix + strings.Join([]string{peer.String(), device.String()}, verifySeparator)
}

func (s *KeyStore) SaveVerification(code domain.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(verifyKey(code.PeerID, code.PeerDeviceID), code)
}

func (s *KeyStore) LoadVerification(peer domain.UserID, device domain.DeviceID) (domain.VerificationCode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code domain.VerificationCode
	ok, err := s.getJSON(verifyKey(peer, device), &code)
	return code, ok, err
}

// ClearAll erases every record. Calling it on an empty store is a no-op.
func (s *KeyStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.DeleteAll()
}
