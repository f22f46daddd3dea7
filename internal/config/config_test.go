package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sqlgate/internal/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.SQLServer.TrustServerCertificate)
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoad(t *testing.T) {
	t.Setenv("SQLGATE_TEST_PASSWORD", "s3cret")

	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9090
  read_timeout: 5s
log:
  level: debug
  format: console
sqlserver:
  host: db01
  instance_name: SQLEXPRESS
  database: sales
  username: reporter
  password: ${SQLGATE_TEST_PASSWORD}
  trust_server_certificate: false
  query_timeout: 1m
archive:
  enabled: true
  endpoint: minio:9000
  bucket: results
  url_ttl: 10m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout, "default kept")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "s3cret", cfg.SQLServer.Password)
	assert.Equal(t, time.Minute, cfg.SQLServer.QueryTimeout)
	assert.False(t, cfg.SQLServer.TrustServerCertificate)
	assert.Equal(t, "minio:9000", cfg.Archive.Endpoint)
	assert.Equal(t, "results", cfg.Archive.Bucket)
	assert.Equal(t, 10*time.Minute, cfg.Archive.URLTTL)
	assert.Equal(t, "results", cfg.Archive.Prefix, "default kept")

	d := cfg.Descriptor()
	assert.Equal(t, "db01", d.Host)
	assert.Equal(t, "SQLEXPRESS", d.InstanceName)
	require.NotNil(t, d.Database)
	assert.Equal(t, "sales", *d.Database)
	require.NotNil(t, d.ApplicationName)
	assert.Equal(t, "sqlgate", *d.ApplicationName)
	assert.False(t, d.TrustServerCertificate)
}

func TestLoad_EmptyFileAndPath(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.SQLServer.Host)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errs.IsNotFound(err))

	_, err = Load(writeConfig(t, "sqlserver:\n  hots: typo\n"))
	assert.True(t, errs.IsInvalidInput(err), "unknown keys are rejected")

	_, err = Load(writeConfig(t, "archive:\n  enabled: true\n  provider: azure\n"))
	assert.True(t, errs.IsInvalidInput(err), "only minio archives can be built")

	_, err = Load(writeConfig(t, "server: [not, a, map]\n"))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"negative dial timeout", func(c *Config) { c.SQLServer.DialTimeout = -time.Second }},
		{"negative query timeout", func(c *Config) { c.SQLServer.QueryTimeout = -1 }},
		{"archive without endpoint", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Endpoint = ""
		}},
		{"archive with unknown provider", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Provider = "s3"
		}},
		{"archive with empty provider", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Provider = ""
		}},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Bucket = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}
