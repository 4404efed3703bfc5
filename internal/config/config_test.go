package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"HOST", "PORT", "ALLOWED_ORIGINS", "DATABASE_DRIVER", "DATABASE_URL", "S3_BUCKET", "JWT_SECRET", "LOG_LEVEL", "ADMIN_EMAILS"} {
		t.Setenv(k, "")
	}
}

func TestLoad_FileAndDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: memory
jwt:
  secret: s3cret
cache:
  max_size: 50
aws:
  signed_url_ttl: 30m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 50, cfg.Cache.MaxSize)
	assert.Equal(t, 30*time.Minute, cfg.AWS.SignedURLTTL)
	assert.Equal(t, "photos", cfg.AWS.S3Bucket)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, time.Hour, cfg.Photos.CleanupInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: from-file
`)
	clearEnv(t)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PORT", "7000")
	t.Setenv("ALLOWED_ORIGINS", "https://cheki.app,http://localhost:5173")
	t.Setenv("ADMIN_EMAILS", "ops@cheki.app,aki@cheki.app")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/cheki")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"https://cheki.app", "http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"ops@cheki.app", "aki@cheki.app"}, cfg.Admin.Emails)
	assert.Equal(t, "postgres://u:p@db:5432/cheki", cfg.Database.DSN())
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "x")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "no secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "jwt secret"},
		{name: "bad driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "unknown database driver"},
		{name: "negative ttl", mutate: func(c *Config) { c.AWS.SignedURLTTL = -time.Second }, wantErr: "signed_url_ttl"},
		{name: "negative cache", mutate: func(c *Config) { c.Cache.MaxSize = -1 }, wantErr: "max_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{JWT: JWTConfig{Secret: "s"}}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN_FromParts(t *testing.T) {
	c := DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=d sslmode=disable", c.DSN())
}
