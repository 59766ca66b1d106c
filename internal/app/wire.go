package app

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"cipherchat/internal/connection"
	"cipherchat/internal/domain"
	"cipherchat/internal/relay"
	"cipherchat/internal/services/delivery"
	"cipherchat/internal/services/session"
	"cipherchat/internal/store"
)

// Wire bundles the stores, services and clients used by the CLI.
type Wire struct {
	cfg Config
	log *zap.Logger

	Storage  domain.SecureStorage
	Keys     *store.KeyStore
	Sessions *session.Manager
	Relay    *relay.Client
	Delivery *delivery.Coordinator
	Conn     *connection.Manager

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	kv, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	keys := store.NewKeyStore(kv)

	mode, _ := session.ParseMode(cfg.Cipher)
	sessions := session.New(keys, session.WithCipher(mode), session.WithLogger(log.Named("session")))

	id, err := sessions.GetOrCreateIdentity()
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	rc := relay.New(cfg.RelayURL, cfg.Token)
	if cfg.HTTP != nil {
		rc.HTTP = cfg.HTTP
	}

	coord := delivery.New(delivery.Config{
		Self:       cfg.UserID,
		SelfDevice: id.DeviceID,
		Sessions:   sessions,
		Messages:   rc,
		Receipts:   rc,
		Keys:       rc,
		Log:        log.Named("delivery"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Wire{
		cfg:      cfg,
		log:      log,
		Storage:  kv,
		Keys:     keys,
		Sessions: sessions,
		Relay:    rc,
		Delivery: coord,
		Conn:     connection.New(cfg.Connection, log.Named("connection")),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func openStorage(cfg Config) (domain.SecureStorage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return store.NewMemoryKV(), nil
	case BackendBolt:
		return store.OpenBoltKV(filepath.Join(cfg.Home, "keys.db"), cfg.Passphrase)
	default:
		return store.OpenFileKV(cfg.Home, cfg.Passphrase)
	}
}

// Close disconnects, waits for pending receipts and closes storage.
func (w *Wire) Close() error {
	w.Conn.Disconnect()
	w.cancel()
	w.Delivery.Wait()
	return w.Storage.Close()
}
