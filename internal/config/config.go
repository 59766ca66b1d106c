// Package config loads the relay server configuration.
//
// Sources are applied in order: built-in defaults, an optional TOML file,
// a .env file, then the process environment. Command-line flags are applied
// by the caller on top of the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment names.
const (
	Development = "development"
	Production  = "production"
)

// DevSecret signs tokens when no secret is configured in development.
const DevSecret = "cipherchat-dev-secret"

// Server is the relay configuration.
type Server struct {
	Port           string   `toml:"port"`
	DatabaseURL    string   `toml:"database_url"`
	JWTSecret      string   `toml:"jwt_secret"`
	Environment    string   `toml:"environment"`
	TokenTTL       Duration `toml:"token_ttl"`
	MigrateOnStart bool     `toml:"migrate_on_start"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Duration is a time.Duration that decodes from TOML strings like "24h".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when nothing else is set.
func Default() *Server {
	return &Server{
		Port:           "8080",
		JWTSecret:      DevSecret,
		Environment:    Development,
		TokenTTL:       Duration{24 * time.Hour},
		MigrateOnStart: true,
		AllowedOrigins: []string{"*"},
	}
}

// Load builds the configuration from file (optional), envFile (optional,
// missing is not an error) and the environment.
func Load(file, envFile string) (*Server, error) {
	cfg := Default()
	if file != "" {
		if _, err := toml.DecodeFile(file, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", file, err)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("env file %s: %w", envFile, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Server) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Port = v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := lookup("JWT_SECRET"); ok {
		c.JWTSecret = v
	}
	if v, ok := lookup("ENVIRONMENT"); ok && v != "" {
		c.Environment = strings.ToLower(v)
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = c.AllowedOrigins[:0:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
}

// IsDevelopment reports whether the relay runs in development mode.
func (c *Server) IsDevelopment() bool { return c.Environment == Development }

// Addr returns the listen address.
func (c *Server) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// Validate rejects configurations that cannot run safely.
func (c *Server) Validate() error {
	if c.Port == "" {
		return errors.New("config: empty port")
	}
	if c.TokenTTL.Duration <= 0 {
		return errors.New("config: token_ttl must be positive")
	}
	if c.IsDevelopment() {
		return nil
	}
	if c.JWTSecret == "" || c.JWTSecret == DevSecret {
		return errors.New("config: jwt secret must be set outside development")
	}
	return nil
}
