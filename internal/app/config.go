package app

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"cipherchat/internal/connection"
	"cipherchat/internal/domain"
	"cipherchat/internal/services/session"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Config holds runtime wiring options for building the client.
type Config struct {
	Home       string        // data directory, e.g. $HOME/.cipherchat
	RelayURL   string        // relay base URL, e.g. http://127.0.0.1:8080
	WSURL      string        // realtime endpoint; derived from RelayURL when empty
	Token      string        // relay bearer token
	UserID     domain.UserID // account on the relay
	Passphrase string        // protects local key material
	Backend    string        // file, bolt or memory
	Cipher     string        // encoding or aead
	Connection connection.Config
	HTTP       *http.Client // optional
	Log        *zap.Logger  // optional
}

// Validate checks the options NewWire depends on.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendFile, BackendBolt:
		if c.Home == "" {
			return errors.New("home directory required")
		}
		if c.Passphrase == "" {
			return errors.New("passphrase required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if _, err := session.ParseMode(c.Cipher); err != nil {
		return err
	}
	return nil
}

// WebsocketURL returns the realtime endpoint: WSURL when set, otherwise
// RelayURL with a ws scheme and the /v1/ws path.
func (c Config) WebsocketURL() (string, error) {
	if c.WSURL != "" {
		return c.WSURL, nil
	}
	if c.RelayURL == "" {
		return "", errors.New("relay URL required")
	}
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	return u.String(), nil
}
