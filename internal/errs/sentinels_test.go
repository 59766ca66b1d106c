package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrEncryptionFailed, cause)

	require.ErrorIs(t, err, ErrEncryptionFailed)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrDecryptionFailed)
	require.Equal(t, "encryption failed: boom", err.Error())
}

func TestWrap_NilCause(t *testing.T) {
	require.Same(t, ErrSessionNotFound, Wrap(ErrSessionNotFound, nil))
}
