// Package config reads the bootstrap settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blang/semver/v4"
	"github.com/rs/zerolog"
	"github.com/vrischmann/envconfig"

	"github.com/kong/go-dataplane-bootstrap/pkg/dataplane"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/kong/go-dataplane-bootstrap/pkg/retry"
)

// ErrNoCredentials is returned when neither a token nor a cookie file is
// configured.
var ErrNoCredentials = errors.New("one of KONNECT_TOKEN or KONNECT_COOKIE_FILE is required")

// Config holds every setting of a bootstrap run.
type Config struct {
	Address    string `envconfig:"KONNECT_ADDR,default=https://us.api.konghq.com"`
	Token      string `envconfig:"KONNECT_TOKEN,optional"`
	CookieFile string `envconfig:"KONNECT_COOKIE_FILE,optional"`

	DataPlaneImage string `envconfig:"KONNECT_DP_IMAGE,default=kong/kong-gateway-dev:nightly-ubuntu"`
	DataPlaneName  string `envconfig:"KONNECT_DP_NAME,optional"`
	// DataPlaneVersion is a semver range the converged node must satisfy.
	DataPlaneVersion string `envconfig:"KONNECT_DP_VERSION,optional"`
	// WorkDir holds the generated certificate files. When empty, the CLI
	// creates a fresh temporary directory.
	WorkDir string `envconfig:"KONNECT_WORKDIR,optional"`

	RetryInterval time.Duration `envconfig:"KONNECT_RETRY_INTERVAL,default=1s"`
	RetryTimeout  time.Duration `envconfig:"KONNECT_RETRY_TIMEOUT,default=30s"`
	HTTPRetryMax  int           `envconfig:"KONNECT_HTTP_RETRY_MAX,default=0"`

	LogLevel string `envconfig:"LOG_LEVEL,default=info"`
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Init(&c); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks settings that cannot be expressed as envconfig tags.
func (c *Config) Validate() error {
	var errs []error
	if c.Token == "" && c.CookieFile == "" {
		errs = append(errs, ErrNoCredentials)
	}
	if c.Address == "" {
		errs = append(errs, errors.New("KONNECT_ADDR cannot be empty"))
	}
	if c.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("KONNECT_RETRY_INTERVAL must be positive, got %s", c.RetryInterval))
	}
	if c.RetryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("KONNECT_RETRY_TIMEOUT must be positive, got %s", c.RetryTimeout))
	}
	if c.HTTPRetryMax < 0 {
		errs = append(errs, fmt.Errorf("KONNECT_HTTP_RETRY_MAX cannot be negative, got %d", c.HTTPRetryMax))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.DataPlaneVersion != "" {
		if _, err := semver.ParseRange(c.DataPlaneVersion); err != nil {
			errs = append(errs, fmt.Errorf("KONNECT_DP_VERSION: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Policy is the retry policy of the convergence polls.
func (c *Config) Policy() retry.Policy {
	return retry.Policy{Timeout: c.RetryTimeout, Interval: c.RetryInterval}
}

// Image returns the data plane image, dataplane.DefaultImage when unset.
func (c *Config) Image() string {
	if c.DataPlaneImage == "" {
		return dataplane.DefaultImage
	}
	return c.DataPlaneImage
}

// ClientOpts returns the options of the Konnect client.
func (c *Config) ClientOpts(logger zerolog.Logger) konnect.ClientOpts {
	return konnect.ClientOpts{
		Address:    c.Address,
		Token:      c.Token,
		CookieFile: c.CookieFile,
		RetryMax:   c.HTTPRetryMax,
		Logger:     logger,
	}
}

// Logger returns a console logger on stderr at the configured level.
func (c *Config) Logger() zerolog.Logger {
	return c.logger(os.Stderr)
}

func (c *Config) logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}
