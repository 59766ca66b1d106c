package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cipherchat/internal/config"
	"cipherchat/internal/domain"
	"cipherchat/internal/hub"
	"cipherchat/internal/migrate"
	"cipherchat/internal/repository"
	"cipherchat/internal/repository/postgres"
	"cipherchat/internal/server"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type flags struct {
	configFile string
	envFile    string

	port        string
	databaseURL string
	jwtSecret   string
	environment string
	noMigrate   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:          "relay",
		Short:        "cipherchat relay server",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "TOML config file")
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file (missing is fine)")
	pf.StringVar(&f.port, "port", "", "listen port (overrides PORT)")
	pf.StringVar(&f.databaseURL, "database-url", "", "PostgreSQL DSN (overrides DATABASE_URL)")
	pf.StringVar(&f.jwtSecret, "jwt-secret", "", "HS256 signing secret (overrides JWT_SECRET)")
	pf.StringVar(&f.environment, "environment", "", "development or production (overrides ENVIRONMENT)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			if f.noMigrate {
				cfg.MigrateOnStart = false
			}
			return serveRelay(cmd.Context(), cfg)
		},
	}
	serve.Flags().BoolVar(&f.noMigrate, "no-migrate", false, "skip migrations on start")

	migrateCmd := &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			m, err := migrate.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer m.Close()
			if len(args) == 1 && args[0] == "status" {
				return m.Status(cmd.Context(), cmd.OutOrStdout())
			}
			n, err := m.Up(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	}

	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token <user>",
		Short: "Print a bearer token for user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL.Duration
			}
			tok, err := server.IssueToken([]byte(cfg.JWTSecret), domain.UserID(args[0]), ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")

	root.AddCommand(serve, migrateCmd, token)
	return root
}

// load reads the configuration and applies explicit flags on top.
func (f *flags) load() (*config.Server, error) {
	cfg, err := config.Load(f.configFile, f.envFile)
	if err != nil {
		return nil, err
	}
	if f.port != "" {
		cfg.Port = f.port
	}
	if f.databaseURL != "" {
		cfg.DatabaseURL = f.databaseURL
	}
	if f.jwtSecret != "" {
		cfg.JWTSecret = f.jwtSecret
	}
	if f.environment != "" {
		cfg.Environment = f.environment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Server) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serveRelay(ctx context.Context, cfg *config.Server) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr()),
		zap.String("environment", cfg.Environment),
	)

	deps := server.Deps{Secret: []byte(cfg.JWTSecret), Log: logger, AllowedOrigins: cfg.AllowedOrigins}
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
		}
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		messages := postgres.NewMessageRepo(db)
		deps.Messages = messages
		deps.Receipts = messages
		deps.Keys = postgres.NewKeyRepo(db)
		deps.Groups = postgres.NewGroupRepo(db)
	} else {
		logger.Warn("DATABASE_URL not set; state is kept in memory")
		mem := repository.NewMemory()
		deps.Messages, deps.Receipts, deps.Keys, deps.Groups = mem, mem, mem, mem
	}

	h := hub.New(logger.Named("hub"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go h.Run(hubCtx)
	deps.Hub = h

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.New(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown; stopping
		// the hub closes them with a going-away status.
		stopHub()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	logger.Info("shutdown complete")
	return nil
}
