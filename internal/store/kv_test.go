package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
	"cipherchat/internal/store"
)

type opener func(t *testing.T, dir, pass string) (domain.SecureStorage, error)

func backends() map[string]opener {
	return map[string]opener{
		"file": func(t *testing.T, dir, pass string) (domain.SecureStorage, error) {
			return store.OpenFileKV(dir, pass)
		},
		"bolt": func(t *testing.T, dir, pass string) (domain.SecureStorage, error) {
			return store.OpenBoltKV(filepath.Join(dir, "keys.db"), pass)
		},
		"memory": func(t *testing.T, dir, pass string) (domain.SecureStorage, error) {
			return store.NewMemoryKV(), nil
		},
	}
}

func TestKV_PutGetDelete(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			kv, err := open(t, t.TempDir(), "pass")
			require.NoError(t, err)
			defer kv.Close()

			_, ok, err := kv.Get("missing")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, kv.Put("session/bob:d1", []byte("one")))
			require.NoError(t, kv.Put("session/carol:d1", []byte("two")))
			require.NoError(t, kv.Put("identity", []byte("me")))

			v, ok, err := kv.Get("session/bob:d1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "one", string(v))

			keys, err := kv.Keys("session/")
			require.NoError(t, err)
			require.Equal(t, []string{"session/bob:d1", "session/carol:d1"}, keys)

			require.NoError(t, kv.Delete("session/bob:d1"))
			require.NoError(t, kv.Delete("session/bob:d1"))
			_, ok, err = kv.Get("session/bob:d1")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, kv.DeleteAll())
			require.NoError(t, kv.DeleteAll())
			keys, err = kv.Keys("")
			require.NoError(t, err)
			require.Empty(t, keys)
		})
	}
}

func TestKV_ReopenAndWrongPassphrase(t *testing.T) {
	for name, open := range backends() {
		if name == "memory" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			kv, err := open(t, dir, "correct")
			require.NoError(t, err)
			require.NoError(t, kv.Put("identity", []byte("secret")))
			require.NoError(t, kv.Close())

			kv, err = open(t, dir, "correct")
			require.NoError(t, err)
			v, ok, err := kv.Get("identity")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "secret", string(v))
			require.NoError(t, kv.Close())

			_, err = open(t, dir, "wrong")
			require.Error(t, err)
			require.True(t, errors.Is(err, errs.ErrUnauthorized))
		})
	}
}
