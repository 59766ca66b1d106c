package prekey_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherchat/internal/crypto"
	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/services/identity"
	"cipherchat/internal/services/prekey"
	"cipherchat/internal/store"
)

func newService(t *testing.T) (*prekey.Service, *identity.Service) {
	t.Helper()
	kv, err := store.OpenBoltKV(t.TempDir()+"/keys.db", "pass")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	ks := store.NewKeyStore(kv)
	ids := identity.New(ks)
	return prekey.New(ids, ks), ids
}

func TestPublishPrekeys_DefaultTenDistinct(t *testing.T) {
	svc, _ := newService(t)

	ids, err := svc.PublishPrekeys(0)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	seen := make(map[domain.PrekeyID]bool)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	more, err := svc.PublishPrekeys(3)
	require.NoError(t, err)
	require.Len(t, more, 3)
}

func TestBundle_SignedAndConsumedOnce(t *testing.T) {
	svc, ids := newService(t)

	_, err := svc.Bundle("alice")
	require.True(t, errors.Is(err, errs.ErrNotFound))

	published, err := svc.PublishPrekeys(2)
	require.NoError(t, err)

	b, err := svc.Bundle("alice")
	require.NoError(t, err)
	require.False(t, b.Empty())
	require.Equal(t, published[0], b.PreKeyID)

	id, err := ids.GetOrCreateIdentity()
	require.NoError(t, err)
	require.Equal(t, id.DeviceID, b.DeviceID)

	pre, err := crypto.DecodeKey32(b.PreKey)
	require.NoError(t, err)
	sig, err := base64Decode(b.Signature)
	require.NoError(t, err)
	require.True(t, crypto.VerifyEd25519(id.EdPub, pre[:], sig))

	pk, err := svc.ConsumePrekey(b.PreKeyID)
	require.NoError(t, err)
	require.True(t, pk.Used)

	_, err = svc.ConsumePrekey(b.PreKeyID)
	require.True(t, errors.Is(err, errs.ErrInvalidKeyMaterial))

	next, err := svc.Bundle("alice")
	require.NoError(t, err)
	require.Equal(t, published[1], next.PreKeyID)
}

func TestBundles_OnePerUnusedPrekeyInOrder(t *testing.T) {
	svc, _ := newService(t)

	all, err := svc.Bundles("alice")
	require.NoError(t, err)
	require.Empty(t, all)

	ids, err := svc.PublishPrekeys(3)
	require.NoError(t, err)
	_, err = svc.ConsumePrekey(ids[0])
	require.NoError(t, err)

	all, err = svc.Bundles("alice")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, ids[1], all[0].PreKeyID)
	require.Equal(t, ids[2], all[1].PreKeyID)
	require.Equal(t, all[0].IdentityKey, all[1].IdentityKey)
	require.NotEqual(t, all[0].Signature, all[1].Signature)
}
