package identity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cipherchat/internal/services/identity"
	"cipherchat/internal/store"
)

func TestGetOrCreateIdentity_Stable(t *testing.T) {
	kv, err := store.OpenFileKV(t.TempDir(), "pass")
	require.NoError(t, err)
	svc := identity.New(store.NewKeyStore(kv))

	first, err := svc.GetOrCreateIdentity()
	require.NoError(t, err)
	require.NotEmpty(t, first.DeviceID)

	second, err := svc.GetOrCreateIdentity()
	require.NoError(t, err)
	require.Equal(t, first, second)

	fp1, err := svc.Fingerprint()
	require.NoError(t, err)
	fp2, err := svc.Fingerprint()
	require.NoError(t, err)
	require.Len(t, fp1.String(), 20)
	require.Equal(t, fp1, fp2)
}
