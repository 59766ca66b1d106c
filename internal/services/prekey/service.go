package prekey

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

// DefaultBatch is the number of prekeys generated when no count is given.
const DefaultBatch = 10

// Service manages prekey pairs and builds the public bundle.
type Service struct {
	ids domain.IdentityService
	ps  domain.PrekeyStore
	now func() time.Time
}

func New(ids domain.IdentityService, ps domain.PrekeyStore) *Service {
	return &Service{ids: ids, ps: ps, now: time.Now}
}

// PublishPrekeys generates count single-use pairs, persists them and returns
// their ids. A count of zero or less selects DefaultBatch.
func (s *Service) PublishPrekeys(count int) ([]domain.PrekeyID, error) {
	if count <= 0 {
		count = DefaultBatch
	}
	created := s.now().UTC().UnixNano()

	pairs := make([]domain.Prekey, 0, count)
	ids := make([]domain.PrekeyID, 0, count)
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, err
		}
		u, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		id := domain.PrekeyID("pk-" + u.String())
		// Offsetting keeps batch order stable when listing by creation time.
		pairs = append(pairs, domain.Prekey{ID: id, Priv: priv, Pub: pub, CreatedUTC: created + int64(i)})
		ids = append(ids, id)
	}
	if err := s.ps.SavePrekeys(pairs); err != nil {
		return nil, err
	}
	return ids, nil
}

// Bundle assembles the public bundle for user from the identity and the
// oldest unused prekey.
func (s *Service) Bundle(user domain.UserID) (domain.PrekeyBundle, error) {
	all, err := s.Bundles(user)
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	if len(all) == 0 {
		return domain.PrekeyBundle{}, fmt.Errorf("%w: no unused prekeys", errs.ErrNotFound)
	}
	return all[0], nil
}

// Bundles returns one bundle per unused prekey, oldest first. Each prekey is
// signed with the identity signing key.
func (s *Service) Bundles(user domain.UserID) ([]domain.PrekeyBundle, error) {
	id, err := s.ids.GetOrCreateIdentity()
	if err != nil {
		return nil, err
	}
	all, err := s.ps.ListPrekeys()
	if err != nil {
		return nil, err
	}
	var out []domain.PrekeyBundle
	for _, pk := range all {
		if pk.Used {
			continue
		}
		sig := crypto.SignEd25519(id.EdPriv, pk.Pub.Slice())
		out = append(out, domain.PrekeyBundle{
			UserID:      user,
			DeviceID:    id.DeviceID,
			IdentityKey: crypto.B64(id.XPub.Slice()),
			SigningKey:  crypto.B64(id.EdPub.Slice()),
			PreKeyID:    pk.ID,
			PreKey:      crypto.B64(pk.Pub.Slice()),
			Signature:   crypto.B64(sig),
		})
	}
	return out, nil
}

// ConsumePrekey marks id used and returns it. A prekey is handed out once.
func (s *Service) ConsumePrekey(id domain.PrekeyID) (domain.Prekey, error) {
	pk, ok, err := s.ps.LoadPrekey(id)
	if err != nil {
		return domain.Prekey{}, err
	}
	if !ok {
		return domain.Prekey{}, fmt.Errorf("%w: prekey %s", errs.ErrNotFound, id)
	}
	if pk.Used {
		return domain.Prekey{}, fmt.Errorf("%w: prekey %s already used", errs.ErrInvalidKeyMaterial, id)
	}
	if err := s.ps.MarkPrekeyUsed(id); err != nil {
		return domain.Prekey{}, err
	}
	pk.Used = true
	return pk, nil
}

// Compile-time assertion that Service implements domain.PrekeyService.
var _ domain.PrekeyService = (*Service)(nil)
