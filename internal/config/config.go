// Package config loads and validates CLI configuration from flags and the
// environment using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmcleod/ironsession/biometric"
)

// EnvPrefix prefixes every environment variable, e.g. IRONSESSION_API_URL.
const EnvPrefix = "IRONSESSION"

// Config holds the client configuration.
type Config struct {
	// APIURL is the base URL of the remote auth API.
	APIURL string `mapstructure:"api_url"`
	// DataDir holds the credential database and the device key.
	DataDir string `mapstructure:"data_dir"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`
	// HTTPTimeout bounds each request to the auth API.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// StorePassphrase, when set, is mixed with the device key to protect
	// the credential store.
	StorePassphrase string `mapstructure:"store_passphrase"`
	// Biometric selects the simulated sensor: none, fingerprint or facial.
	Biometric string `mapstructure:"biometric"`
	// Platform selects platform wording: ios, android or other.
	Platform string `mapstructure:"platform"`
}

var defaults = map[string]any{
	"api_url":          "http://localhost:8080",
	"data_dir":         "./data",
	"log_level":        "info",
	"http_timeout":     "30s",
	"store_passphrase": "",
	"biometric":        "none",
	"platform":         string(biometric.PlatformOther),
}

// RegisterFlags adds a flag for every config key to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("api-url", "http://localhost:8080", "Base URL of the auth API")
	fs.String("data-dir", "./data", "Directory for the credential store")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Duration("http-timeout", 30*time.Second, "Timeout for auth API requests")
	fs.String("biometric", "none", "Simulated biometric sensor (none, fingerprint, facial)")
	fs.String("platform", string(biometric.PlatformOther), "Platform wording (ios, android, other)")
}

// Load builds Config from defaults, the environment and any flags in fs
// that were set explicitly. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; !known || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("config: binding flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if c.APIURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: api_url must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("config: api_url must use http or https")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir must be set")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("config: http_timeout must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if _, err := c.BiometricTypes(); err != nil {
		return err
	}
	switch biometric.Platform(c.Platform) {
	case biometric.PlatformIOS, biometric.PlatformAndroid, biometric.PlatformOther:
	default:
		return fmt.Errorf("config: unknown platform %q", c.Platform)
	}
	return nil
}

// BiometricTypes returns the sensor types of the simulated device; nil
// means no biometric hardware.
func (c *Config) BiometricTypes() ([]biometric.AuthType, error) {
	switch strings.ToLower(c.Biometric) {
	case "", "none":
		return nil, nil
	case string(biometric.Fingerprint):
		return []biometric.AuthType{biometric.Fingerprint}, nil
	case string(biometric.Facial):
		return []biometric.AuthType{biometric.Facial}, nil
	default:
		return nil, fmt.Errorf("config: unknown biometric %q", c.Biometric)
	}
}
