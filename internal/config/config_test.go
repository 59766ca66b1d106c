package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENVIRONMENT", "")
	cfg, err := Load("", "")
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, ":8080", cfg.Addr())
	require.True(t, cfg.IsDevelopment())
	require.Equal(t, 24*time.Hour, cfg.TokenTTL.Duration)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "relay.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
port = "9000"
database_url = "postgres://file"
jwt_secret = "from-file"
environment = "production"
token_ttl = "1h"
`), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "from-env")
	cfg, err := Load(file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, "postgres://env", cfg.DatabaseURL)
	require.Equal(t, "from-env", cfg.JWTSecret)
	require.Equal(t, time.Hour, cfg.TokenTTL.Duration)
	require.False(t, cfg.IsDevelopment())
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(file, []byte(`token_ttl = "forever"`), 0o600))
	_, err := Load(file, "")
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{"PORT": "7000", "JWT_SECRET": "s", "ENVIRONMENT": "Production", "ALLOWED_ORIGINS": "https://a.example, ,https://b.example"}
	cfg := Default()
	cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Equal(t, "7000", cfg.Port)
	require.Equal(t, "s", cfg.JWTSecret)
	require.Equal(t, Production, cfg.Environment)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.Equal(t, []string{"*"}, Default().AllowedOrigins)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Environment = Production
	require.Error(t, cfg.Validate())

	cfg.JWTSecret = ""
	require.Error(t, cfg.Validate())

	cfg.JWTSecret = "real"
	require.NoError(t, cfg.Validate())

	cfg.Port = ""
	require.Error(t, cfg.Validate())
}
