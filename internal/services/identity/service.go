package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
)

// Service manages identity key creation and access using a backing store.
//
// The identity contains:
//   - X25519 key pair for key agreement.
//   - Ed25519 key pair for signing prekeys.
type Service struct {
	store domain.IdentityStore
	now   func() time.Time

	mu sync.Mutex
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s, now: time.Now} }

// GetOrCreateIdentity returns the persisted identity, generating and saving
// one on first use. Later calls return the same identity.
func (s *Service) GetOrCreateIdentity() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.store.LoadIdentity()
	if err != nil {
		return domain.Identity{}, err
	}
	if ok {
		return id, nil
	}

	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Identity{}, err
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.Identity{}, err
	}
	device, err := uuid.NewV4()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("device id: %w", err)
	}

	id = domain.Identity{
		DeviceID:   domain.DeviceID(device.String()),
		XPub:       xPub,
		XPriv:      xPriv,
		EdPub:      edPub,
		EdPriv:     edPriv,
		CreatedUTC: s.now().UTC().Unix(),
	}
	if err := s.store.SaveIdentity(id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// Fingerprint returns a short fingerprint of the local X25519 public key.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	id, err := s.GetOrCreateIdentity()
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice())), nil
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
