package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestFlags(t *testing.T) {
	flagNames := make(map[string]bool)
	for _, f := range Flags() {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{
		"host", "port", "database-driver", "database-dsn",
		"jwt-secret", "jwt-algorithm", "jwt-ttl",
		"frontend-url", "link-ttl", "hide-unknown-email",
		"smtp-host", "mail-workers", "health-addr",
	} {
		assert.True(t, flagNames[name], "missing flag %s", name)
	}
}

func runWith(t *testing.T, args []string) *Config {
	t.Helper()
	var cfg *Config
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg = NewFromCLI(cmd)
			return nil
		},
	}
	require.NoError(t, app.Run(context.Background(), append([]string{"test"}, args...)))
	require.NotNil(t, cfg)
	return cfg
}

func TestNewFromCLI_Defaults(t *testing.T) {
	cfg := runWith(t, nil)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
	assert.Equal(t, ":9090", cfg.Server.HealthAddr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "HS256", cfg.JWT.Algorithm)
	assert.Equal(t, 30*time.Minute, cfg.JWT.TTL)
	assert.Equal(t, "http://localhost:3000", cfg.Recovery.FrontendURL)
	assert.Equal(t, time.Hour, cfg.Recovery.LinkTTL)
	assert.False(t, cfg.Recovery.HideUnknownEmail)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.TLS)
	assert.False(t, cfg.SMTP.Enabled())
	assert.Equal(t, 2, cfg.Mail.Workers)
	assert.Equal(t, 64, cfg.Mail.Queue)

	// no secret by default
	require.ErrorContains(t, cfg.Validate(), "jwt secret is required")
}

func TestNewFromCLI_CustomValues(t *testing.T) {
	cfg := runWith(t, []string{
		"--port", "9000",
		"--database-driver", "Postgres",
		"--database-dsn", "postgres://u:p@localhost/plaze",
		"--jwt-secret", "s3cr3t",
		"--jwt-algorithm", "hs512",
		"--frontend-url", "https://plaze.example/",
		"--cors-origins", "https://a.example, https://b.example",
	})

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "HS512", cfg.JWT.Algorithm)
	assert.Equal(t, "https://plaze.example", cfg.Recovery.FrontendURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestNewFromCLI_Env(t *testing.T) {
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")

	cfg := runWith(t, nil)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 5*time.Minute, cfg.JWT.TTL)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:"},
			JWT:      JWTConfig{Secret: "k", Algorithm: "HS256", TTL: time.Minute},
			Recovery: RecoveryConfig{LinkTTL: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad algorithm", func(c *Config) { c.JWT.Algorithm = "RS256" }, "unsupported jwt algorithm"},
		{"zero ttl", func(c *Config) { c.JWT.TTL = 0 }, "jwt ttl must be positive"},
		{"zero link ttl", func(c *Config) { c.Recovery.LinkTTL = 0 }, "link ttl must be positive"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "unknown database driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database dsn is required"},
		{"smtp without from", func(c *Config) { c.SMTP.Host = "smtp.example.com" }, "smtp from address is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
