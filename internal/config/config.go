package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "NOVELVERSE"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "novelverse.db"
	defaultLogLevel       = "info"
	defaultShareBaseURL   = "http://localhost:8080"
	defaultImagesDir      = "images"
	defaultAssertIssuer   = "novelverse-idp"
	defaultTokenTTLMinute = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	DatabasePath           string
	LogLevel               string
	SigningSecret          string
	AssertionSigningSecret string
	AssertionIssuer        string
	TokenTTL               time.Duration
	ShareBaseURL           string
	ImagesDir              string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("share.base_url", defaultShareBaseURL)
	configViper.SetDefault("images.dir", defaultImagesDir)
	configViper.SetDefault("assertion.issuer", defaultAssertIssuer)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinute)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabasePath:           configViper.GetString("database.path"),
		LogLevel:               configViper.GetString("log.level"),
		SigningSecret:          configViper.GetString("auth.signing_secret"),
		AssertionSigningSecret: configViper.GetString("assertion.signing_secret"),
		AssertionIssuer:        configViper.GetString("assertion.issuer"),
		TokenTTL:               time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		ShareBaseURL:           configViper.GetString("share.base_url"),
		ImagesDir:              configViper.GetString("images.dir"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AssertionSigningSecret) == "" {
		return fmt.Errorf("assertion.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.ShareBaseURL) == "" {
		return fmt.Errorf("share.base_url is required")
	}
	return nil
}
