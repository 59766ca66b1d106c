package commands

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
)

func TestApplyEnv_OnlyUnsetFlags(t *testing.T) {
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	var relay, tok string
	fs.StringVar(&relay, "relay", "", "")
	fs.StringVar(&tok, "token", "", "")
	require.NoError(t, fs.Parse([]string{"--token", "flag"}))

	t.Setenv("CIPHERCHAT_RELAY", "http://env")
	t.Setenv("CIPHERCHAT_TOKEN", "env")
	applyEnv(fs)

	require.Equal(t, "http://env", relay)
	require.Equal(t, "flag", tok)
}

func TestTarget(t *testing.T) {
	require.Equal(t, domain.Target{UserID: "bob"}, target("bob", false))
	require.Equal(t, domain.Target{GroupID: "g1"}, target("g1", true))
}

func TestRun_ClosesWireWhenCommandFails(t *testing.T) {
	t.Setenv("CIPHERCHAT_RELAY", "")
	home := t.TempDir()
	args := []string{"--home", home, "--passphrase", "p", "--store", "bolt", "send", "bob", "hi"}

	// The bolt file stays locked if the first run leaks the wire, and the
	// second run then fails to open storage instead of reaching the command.
	for i := 0; i < 2; i++ {
		err := run(context.Background(), args)
		require.ErrorContains(t, err, "no relay configured")
		require.Nil(t, wire)
	}
}
