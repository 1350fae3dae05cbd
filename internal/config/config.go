// Package config provides configuration management for heimdex-edit.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// Default values
	DefaultPort           = 8790
	DefaultLogLevel       = "info"
	DefaultDataDir        = ".heimdex-edit"
	DefaultMaxUploadBytes = 100 * 1024 * 1024
	DefaultSessionTTL     = 30 * time.Minute
	DefaultAllowedOrigins = "http://localhost:3000,https://canvaschat.xyz,https://www.canvaschat.xyz"

	// Environment variable names
	EnvPort           = "HEIMDEX_EDIT_PORT"
	EnvLogLevel       = "HEIMDEX_EDIT_LOG_LEVEL"
	EnvDataDir        = "HEIMDEX_EDIT_DATA_DIR"
	EnvMaxUploadBytes = "HEIMDEX_EDIT_MAX_UPLOAD_BYTES"
	EnvSessionTTL     = "HEIMDEX_EDIT_SESSION_TTL"
	EnvAllowedOrigins = "HEIMDEX_EDIT_ALLOWED_ORIGINS"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	PreviewDir() string
	SpoolDir() string
	MaxUploadBytes() int64
	SessionTTL() time.Duration
	AllowedOrigins() []string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	Listen    int           `validate:"min=1,max=65535"`
	Level     string        `validate:"oneof=debug info warn warning error"`
	Dir       string        `validate:"required"`
	MaxUpload int64         `validate:"gt=0"`
	TTL       time.Duration `validate:"gte=0"`
	Origins   []string      `validate:"dive,url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		Listen:    DefaultPort,
		Level:     DefaultLogLevel,
		Dir:       defaultDataDir(),
		MaxUpload: DefaultMaxUploadBytes,
		TTL:       DefaultSessionTTL,
		Origins:   splitList(DefaultAllowedOrigins),
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.Listen = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.Level = strings.ToLower(ll)
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.Dir = dd
	}

	if mb := os.Getenv(EnvMaxUploadBytes); mb != "" {
		n, err := strconv.ParseInt(mb, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxUploadBytes, err)
		}
		cfg.MaxUpload = n
	}

	if ttl := os.Getenv(EnvSessionTTL); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSessionTTL, err)
		}
		cfg.TTL = d
	}

	if origins, ok := os.LookupEnv(EnvAllowedOrigins); ok {
		cfg.Origins = splitList(origins)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and names the environment variable at fault.
func (c *EnvConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("invalid %s: failed %q check", envFor(fe.StructField()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func envFor(field string) string {
	switch field {
	case "Listen":
		return EnvPort
	case "Level":
		return EnvLogLevel
	case "Dir":
		return EnvDataDir
	case "MaxUpload":
		return EnvMaxUploadBytes
	case "TTL":
		return EnvSessionTTL
	case "Origins":
		return EnvAllowedOrigins
	}
	return field
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.Listen
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.Level
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.Dir
}

// PreviewDir holds the bytes behind live preview handles.
func (c *EnvConfig) PreviewDir() string {
	return filepath.Join(c.Dir, "previews")
}

// SpoolDir holds request bodies while they are validated.
func (c *EnvConfig) SpoolDir() string {
	return filepath.Join(c.Dir, "spool")
}

// MaxUploadBytes returns the upload size limit
func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.MaxUpload
}

// SessionTTL returns how long an idle session is kept. Zero disables expiry.
func (c *EnvConfig) SessionTTL() time.Duration {
	return c.TTL
}

func (c *EnvConfig) AllowedOrigins() []string {
	return c.Origins
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
