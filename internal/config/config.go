// Package config loads the sqlgate daemon configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing, so
// secrets can stay out of the file:
//
//	sqlserver:
//	  host: db01
//	  username: reporter
//	  password: ${SQLGATE_PASSWORD}
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/logger"
)

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       logger.Config   `yaml:"log"`
	SQLServer SQLServerConfig `yaml:"sqlserver"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SQLServerConfig is the default connection target and its timeouts.
type SQLServerConfig struct {
	ApplicationName        string `yaml:"application_name"`
	Host                   string `yaml:"host"`
	InstanceName           string `yaml:"instance_name"`
	Database               string `yaml:"database"`
	Username               string `yaml:"username"`
	Password               string `yaml:"password"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`  // TCP connect limit
	QueryTimeout time.Duration `yaml:"query_timeout"` // per query, 0 = none
}

// ArchiveConfig enables archiving query results to object storage.
type ArchiveConfig struct {
	Enabled          bool `yaml:"enabled"`
	filestore.Config `yaml:",inline"`
}

// Default returns the configuration used for every key the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: *logger.DefaultConfig(),
		SQLServer: SQLServerConfig{
			ApplicationName:        "sqlgate",
			Host:                   "localhost",
			TrustServerCertificate: true,
			DialTimeout:            15 * time.Second,
			QueryTimeout:           0,
		},
		Archive: ArchiveConfig{
			Config: *filestore.DefaultConfig("localhost:9000", "", ""),
		},
	}
}

// Load reads the YAML file at path over Default and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrKindNotFound, "config file "+path+" not found", err)
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "reading config file "+path, err)
	}

	if err := cfg.decode(raw); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parsing config file "+path, err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) decode(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errs.New(errs.ErrKindInvalidInput, "server.addr must be set")
	}

	timeouts := map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"sqlserver.dial_timeout":  c.SQLServer.DialTimeout,
		"sqlserver.query_timeout": c.SQLServer.QueryTimeout,
		"archive.url_ttl":         c.Archive.URLTTL,
	}
	for name, d := range timeouts {
		if d < 0 {
			return errs.New(errs.ErrKindInvalidInput, name+" must not be negative")
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Provider != filestore.ProviderMinIO {
			return errs.New(errs.ErrKindInvalidInput,
				"archive.provider "+string(c.Archive.Provider)+" is not supported; use minio")
		}
		if c.Archive.Endpoint == "" {
			return errs.New(errs.ErrKindInvalidInput, "archive.endpoint must be set when the archive is enabled")
		}
		if c.Archive.Bucket == "" {
			return errs.New(errs.ErrKindInvalidInput, "archive.bucket must be set when the archive is enabled")
		}
	}
	return nil
}

// Descriptor builds the default connection descriptor.
func (c *Config) Descriptor() database.Descriptor {
	s := c.SQLServer
	d := database.NewDescriptor().
		WithHost(s.Host).
		WithInstanceName(s.InstanceName).
		WithAuth(s.Username, s.Password).
		WithTrustServerCertificate(s.TrustServerCertificate)
	if s.ApplicationName != "" {
		d = d.WithApplicationName(s.ApplicationName)
	}
	if s.Database != "" {
		d = d.WithDatabase(s.Database)
	}
	return d
}
