// Package config holds runtime settings for the document registry.
//
// Values are resolved in three layers: built-in defaults, environment
// variables, then command-line flags bound by the cobra commands in cmd/.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store drivers
const (
	StoreCSV      = "csv"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Storage drivers
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config is the full application configuration
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	Store   StoreConfig
	Storage StorageConfig

	// AllowedExtensions restricts attachment types on submission; empty allows any
	AllowedExtensions []string
	// MaxUploadMB caps the request body size of the submission form
	MaxUploadMB int
}

// StoreConfig selects and locates the record store
type StoreConfig struct {
	Driver      string
	Path        string
	DatabaseURL string
}

// StorageConfig selects and configures the attachment storage provider
type StorageConfig struct {
	Driver      string
	Dir         string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	Prefix      string
}

// Default returns development defaults: CSV records and local attachments
func Default() *Config {
	return &Config{
		Port:      "8080",
		LogLevel:  "info",
		LogFormat: "console",
		Store: StoreConfig{
			Driver: StoreCSV,
			Path:   "vanban.csv",
		},
		Storage: StorageConfig{
			Driver:   StorageLocal,
			Dir:      "attachments",
			S3Region: "us-east-1",
			Prefix:   "documents",
		},
		AllowedExtensions: []string{"pdf", "docx"},
		MaxUploadMB:       200,
	}
}

// Load returns defaults overlaid with the process environment
func Load() *Config {
	cfg := Default()
	cfg.LoadEnv(os.LookupEnv)
	return cfg
}

// LoadEnv overlays values found through lookup onto c
func (c *Config) LoadEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("DOCREGISTRY_LOG_LEVEL", &c.LogLevel)
	str("DOCREGISTRY_LOG_FORMAT", &c.LogFormat)
	str("DOCREGISTRY_STORE_DRIVER", &c.Store.Driver)
	str("DOCREGISTRY_STORE_PATH", &c.Store.Path)
	str("DOCREGISTRY_STORAGE_DRIVER", &c.Storage.Driver)
	str("DOCREGISTRY_STORAGE_DIR", &c.Storage.Dir)
	str("DOCREGISTRY_S3_BUCKET", &c.Storage.S3Bucket)
	str("DOCREGISTRY_S3_REGION", &c.Storage.S3Region)
	str("DOCREGISTRY_S3_ENDPOINT", &c.Storage.S3Endpoint)
	str("DOCREGISTRY_S3_ACCESS_KEY", &c.Storage.S3AccessKey)
	str("DOCREGISTRY_S3_SECRET_KEY", &c.Storage.S3SecretKey)
	str("DOCREGISTRY_S3_PREFIX", &c.Storage.Prefix)

	if v, ok := lookup("DOCREGISTRY_ALLOWED_EXTENSIONS"); ok {
		c.AllowedExtensions = SplitList(v)
	}
	if v, ok := lookup("DOCREGISTRY_MAX_UPLOAD_MB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxUploadMB = n
		}
	}
}

// Validate reports every inconsistent setting at once
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreCSV, StoreSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store path is required for the %s driver", c.Store.Driver))
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage dir is required for the local driver"))
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("S3 bucket is required for the s3 driver"))
		}
		if c.Storage.S3Region == "" {
			errs = append(errs, errors.New("S3 region is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadMB))
	}

	return errors.Join(errs...)
}

// SplitList parses a comma separated list, dropping blanks and leading dots
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
