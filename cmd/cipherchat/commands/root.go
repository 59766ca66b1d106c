package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"cipherchat/internal/app"
	"cipherchat/internal/domain"
)

var (
	home       string
	passphrase string
	relayURL   string
	wsURL      string
	token      string
	user       string
	backend    string
	cipher     string
	verbose    bool

	wire *app.Wire
)

// Execute runs the CLI until ctx is cancelled or the command returns.
func Execute(ctx context.Context) error { return run(ctx, os.Args[1:]) }

// run executes args and closes the wire afterwards, also when the command
// failed.
func run(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if wire != nil {
		if cerr := wire.Close(); err == nil {
			err = cerr
		}
		wire = nil
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cipherchat",
		Short:         "End-to-end encrypted chat CLI",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			applyEnv(cmd.Flags())
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".cipherchat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			log := zap.NewNop()
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				log = l
			}

			w, err := app.NewWire(app.Config{
				Home:       home,
				RelayURL:   relayURL,
				WSURL:      wsURL,
				Token:      token,
				UserID:     domain.UserID(user),
				Passphrase: passphrase,
				Backend:    backend,
				Cipher:     cipher,
				Log:        log,
			})
			if err != nil {
				return err
			}
			wire = w
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "data dir (default ~/.cipherchat)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting local keys")
	pf.StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	pf.StringVar(&wsURL, "ws", "", "realtime endpoint (default derived from --relay)")
	pf.StringVar(&token, "token", "", "relay bearer token")
	pf.StringVarP(&user, "user", "u", "", "your user id on the relay")
	pf.StringVar(&backend, "store", app.BackendFile, "local storage backend: file or bolt")
	pf.StringVar(&cipher, "cipher", "encoding", "payload cipher: encoding or aead")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		prekeysCmd(),
		verifyCmd(),
		sendCmd(),
		sendFileCmd(),
		listenCmd(),
		groupCmd(),
		sessionsCmd(),
		logoutCmd(),
	)
	return root
}

// applyEnv fills every flag the user did not set from its
// CIPHERCHAT_<NAME> environment variable.
func applyEnv(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		key := "CIPHERCHAT_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			_ = fs.Set(f.Name, v)
		}
	})
}

func requireRelay() error {
	switch {
	case relayURL == "":
		return fmt.Errorf("no relay configured. use --relay")
	case user == "":
		return fmt.Errorf("no user configured. use --user")
	}
	return nil
}
