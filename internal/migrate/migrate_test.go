package migrate

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Port 1 refuses connections, so nothing below touches a real database.
const unreachable = "postgres://cipherchat:x@127.0.0.1:1/cipherchat?sslmode=disable&connect_timeout=1"

func TestOpen_ListsEmbeddedVersionsInOrder(t *testing.T) {
	m, err := Open(unreachable)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, []int64{1, 2}, m.Versions())
}

func TestUp_UnreachableDatabaseFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Error(t, Up(ctx, unreachable))
}

func TestStatus_UnreachableDatabaseWritesNothing(t *testing.T) {
	m, err := Open(unreachable)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var buf bytes.Buffer
	require.Error(t, m.Status(ctx, &buf))
	require.Zero(t, buf.Len())
}
