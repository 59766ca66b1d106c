package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/services/identity"
	"cipherchat/internal/services/prekey"
)

// Manager is the Cryptographic Session Manager.
//
// Encrypt and Decrypt for the same session id are expected to be serialised
// by the caller; the internal lock only keeps store updates whole.
type Manager struct {
	store   domain.KeyStore
	ids     *identity.Service
	prekeys *prekey.Service
	cipher  payloadCipher
	mode    Mode
	now     func() time.Time
	log     *zap.Logger

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithCipher selects the payload cipher. The default is ModeEncoding.
func WithCipher(m Mode) Option {
	return func(s *Manager) {
		s.mode = m
		s.cipher = cipherFor(m)
	}
}

// WithClock overrides the time source used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Manager) { s.now = now }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(s *Manager) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Manager persisting into store.
func New(store domain.KeyStore, opts ...Option) *Manager {
	ids := identity.New(store)
	m := &Manager{
		store:   store,
		ids:     ids,
		prekeys: prekey.New(ids, store),
		cipher:  cipherFor(ModeEncoding),
		mode:    ModeEncoding,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode reports the payload cipher in use.
func (m *Manager) Mode() Mode { return m.mode }

// ---------- Identity and prekeys ----------

func (m *Manager) GetOrCreateIdentity() (domain.Identity, error) { return m.ids.GetOrCreateIdentity() }

func (m *Manager) Fingerprint() (domain.Fingerprint, error) { return m.ids.Fingerprint() }

func (m *Manager) PublishPrekeys(count int) ([]domain.PrekeyID, error) {
	return m.prekeys.PublishPrekeys(count)
}

func (m *Manager) Bundle(user domain.UserID) (domain.PrekeyBundle, error) {
	return m.prekeys.Bundle(user)
}

func (m *Manager) Bundles(user domain.UserID) ([]domain.PrekeyBundle, error) {
	return m.prekeys.Bundles(user)
}

func (m *Manager) ConsumePrekey(id domain.PrekeyID) (domain.Prekey, error) {
	return m.prekeys.ConsumePrekey(id)
}

// ---------- Sessions ----------

// EstablishSession validates bundle and stores a fresh initialized session
// for (peer, device), replacing any existing one. Nothing is written when
// validation fails.
func (m *Manager) EstablishSession(
	peer domain.UserID,
	device domain.DeviceID,
	bundle domain.PrekeyBundle,
) (domain.Session, error) {
	if strings.TrimSpace(peer.String()) == "" || strings.TrimSpace(device.String()) == "" {
		return domain.Session{}, fmt.Errorf("%w: peer and device are required", errs.ErrInvalidKeyMaterial)
	}
	if bundle.Empty() {
		return domain.Session{}, fmt.Errorf("%w: bundle lacks identity key or prekey", errs.ErrInvalidKeyMaterial)
	}
	if err := verifyBundleSignature(bundle); err != nil {
		return domain.Session{}, err
	}

	var key []byte
	if m.mode == ModeAEAD {
		k, err := m.deriveKey(bundle.IdentityKey)
		if err != nil {
			return domain.Session{}, err
		}
		key = k
	}

	now := m.now().UTC()
	sess := domain.Session{
		ID:              domain.SessionIDFor(peer, device),
		PeerID:          peer,
		PeerDeviceID:    device,
		State:           domain.SessionInitialized,
		PeerIdentityKey: bundle.IdentityKey,
		PeerPreKeyID:    bundle.PreKeyID,
		Key:             key,
		CreatedAt:       now,
		LastUsedAt:      now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SaveSession(sess); err != nil {
		return domain.Session{}, err
	}
	m.log.Debug("session established", zap.String("session", sess.ID.String()), zap.String("mode", string(m.mode)))
	return sess, nil
}

// verifyBundleSignature checks the prekey signature when the bundle carries
// one. Unsigned bundles pass.
func verifyBundleSignature(b domain.PrekeyBundle) error {
	if b.Signature == "" {
		return nil
	}
	signer, err := crypto.DecodeKey32(b.SigningKey)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidKeyMaterial, fmt.Errorf("signing key: %w", err))
	}
	pre, err := crypto.DecodeKey32(b.PreKey)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidKeyMaterial, fmt.Errorf("prekey: %w", err))
	}
	sig, err := base64.StdEncoding.DecodeString(b.Signature)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidKeyMaterial, fmt.Errorf("signature: %w", err))
	}
	if !crypto.VerifyEd25519(domain.Ed25519Public(signer), pre[:], sig) {
		return fmt.Errorf("%w: bad prekey signature", errs.ErrInvalidKeyMaterial)
	}
	return nil
}

func (m *Manager) deriveKey(peerIdentity string) ([]byte, error) {
	peerPub, err := crypto.DecodeKey32(peerIdentity)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidKeyMaterial, fmt.Errorf("identity key: %w", err))
	}
	id, err := m.ids.GetOrCreateIdentity()
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveSessionKey(id.XPriv, id.XPub, domain.X25519Public(peerPub))
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidKeyMaterial, err)
	}
	return key, nil
}

// Session returns the session stored under id.
func (m *Manager) Session(id domain.SessionID) (domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.LoadSession(id)
}

// Sessions lists every stored session.
func (m *Manager) Sessions() ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ListSessions()
}

// RemoveSession deletes the session. Removing an unknown id is a no-op.
func (m *Manager) RemoveSession(id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteSession(id)
}

// ExpireIdle removes sessions unused for longer than maxIdle and returns
// them in the expired state.
func (m *Manager) ExpireIdle(maxIdle time.Duration) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.ListSessions()
	if err != nil {
		return nil, err
	}
	cutoff := m.now().UTC().Add(-maxIdle)
	var expired []domain.Session
	for _, sess := range all {
		if !sess.LastUsedAt.Before(cutoff) {
			continue
		}
		if err := m.store.DeleteSession(sess.ID); err != nil {
			return expired, err
		}
		sess.State = domain.SessionExpired
		expired = append(expired, sess)
		m.log.Info("session expired", zap.String("session", sess.ID.String()))
	}
	return expired, nil
}

// Encrypt turns env into the opaque payload for session id.
func (m *Manager) Encrypt(id domain.SessionID, env domain.Envelope) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.loadSession(id)
	if err != nil {
		return "", err
	}
	if !env.Type.Valid() {
		return "", fmt.Errorf("%w: unknown message type %q", errs.ErrEncryptionFailed, env.Type)
	}
	if sess.State == domain.SessionInitialized {
		env.PreKeyID = sess.PeerPreKeyID
	}
	payload, err := m.cipher.seal(sess, env)
	if err != nil {
		return "", errs.Wrap(errs.ErrEncryptionFailed, err)
	}
	if err := m.touch(sess); err != nil {
		return "", errs.Wrap(errs.ErrEncryptionFailed, err)
	}
	return payload, nil
}

// Decrypt recovers the envelope carried by payload for session id.
func (m *Manager) Decrypt(id domain.SessionID, payload string) (domain.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.loadSession(id)
	if err != nil {
		return domain.Envelope{}, err
	}
	env, err := m.cipher.open(sess, payload)
	if err != nil {
		return domain.Envelope{}, errs.Wrap(errs.ErrDecryptionFailed, err)
	}
	if err := m.touch(sess); err != nil {
		return domain.Envelope{}, errs.Wrap(errs.ErrDecryptionFailed, err)
	}
	if env.PreKeyID != "" {
		m.consumeOwnPrekey(env.PreKeyID)
	}
	return env, nil
}

// consumeOwnPrekey retires the local prekey a peer built its session on.
// Unknown ids belong to someone else (our own outbound history) and a used
// one means the message was decrypted before; neither is an error.
func (m *Manager) consumeOwnPrekey(id domain.PrekeyID) {
	_, err := m.prekeys.ConsumePrekey(id)
	switch {
	case err == nil:
		m.log.Debug("prekey consumed", zap.String("prekey", id.String()))
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrInvalidKeyMaterial):
	default:
		m.log.Warn("consume prekey", zap.String("prekey", id.String()), zap.Error(err))
	}
}

func (m *Manager) loadSession(id domain.SessionID) (domain.Session, error) {
	sess, ok, err := m.store.LoadSession(id)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok || sess.State == domain.SessionExpired {
		return domain.Session{}, fmt.Errorf("%w: %s", errs.ErrSessionNotFound, id)
	}
	return sess, nil
}

// touch bumps the last-used time and promotes initialized sessions.
func (m *Manager) touch(sess domain.Session) error {
	sess.LastUsedAt = m.now().UTC()
	if sess.State == domain.SessionInitialized {
		sess.State = domain.SessionActive
	}
	return m.store.SaveSession(sess)
}

// ---------- Verification ----------

// VerificationCode derives the safety number for (peer, device) from the
// local identity. It does not modify any state.
func (m *Manager) VerificationCode(peer domain.UserID, device domain.DeviceID) (domain.VerificationCode, error) {
	id, err := m.ids.GetOrCreateIdentity()
	if err != nil {
		return domain.VerificationCode{}, err
	}
	remote := []byte(peer.String() + "\x00" + device.String())
	code := domain.VerificationCode{
		PeerID:       peer,
		PeerDeviceID: device,
		SafetyNumber: crypto.SafetyNumber(id.XPub.Slice(), remote),
		Fingerprint:  domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice(), remote)),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mark, ok, err := m.store.LoadVerification(peer, device)
	if err != nil {
		return domain.VerificationCode{}, err
	}
	// A mark only counts for the code that was compared.
	if ok && mark.Verified && mark.SafetyNumber == code.SafetyNumber {
		code.Verified = true
		code.VerifiedAt = mark.VerifiedAt
	}
	return code, nil
}

// MarkVerified records that the user compared the code for (peer, device).
func (m *Manager) MarkVerified(peer domain.UserID, device domain.DeviceID) (domain.VerificationCode, error) {
	code, err := m.VerificationCode(peer, device)
	if err != nil {
		return domain.VerificationCode{}, err
	}
	if code.Verified {
		return code, nil
	}
	at := m.now().UTC()
	code.Verified = true
	code.VerifiedAt = &at

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.SaveVerification(code); err != nil {
		return domain.VerificationCode{}, err
	}
	return code, nil
}

// ClearAll erases identity, prekeys, sessions and verification marks.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.ClearAll(); err != nil {
		return err
	}
	m.log.Info("local key material cleared")
	return nil
}

// Compile-time assertion that Manager implements domain.SessionManager.
var _ domain.SessionManager = (*Manager)(nil)
