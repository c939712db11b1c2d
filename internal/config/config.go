package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "BALLOTBOX"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "ballotbox.db"
	defaultLogLevel       = "info"
	defaultSessionIssuer  = "ballotbox-accounts"
	defaultTokenTTL       = 60
	sealingKeyLengthBytes = 32
)

// AppConfig captures runtime configuration for the election API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	SessionSigningKey string
	SessionIssuer     string
	SessionTokenTTL   time.Duration
	ReceiptSealingKey [sealingKeyLengthBytes]byte
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
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.token_ttl_minutes", defaultTokenTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		SessionSigningKey: configViper.GetString("session.signing_secret"),
		SessionIssuer:     configViper.GetString("session.issuer"),
		SessionTokenTTL:   time.Duration(configViper.GetInt("session.token_ttl_minutes")) * time.Minute,
	}

	sealingKey, err := parseSealingKey(configViper.GetString("receipt.sealing_key"))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.ReceiptSealingKey = sealingKey

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func parseSealingKey(encoded string) ([sealingKeyLengthBytes]byte, error) {
	var key [sealingKeyLengthBytes]byte
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return key, fmt.Errorf("receipt.sealing_key is required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return key, fmt.Errorf("receipt.sealing_key must be hex encoded: %w", err)
	}
	if len(decoded) != sealingKeyLengthBytes {
		return key, fmt.Errorf("receipt.sealing_key must decode to %d bytes, got %d", sealingKeyLengthBytes, len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SessionTokenTTL <= 0 {
		return fmt.Errorf("session.token_ttl_minutes must be positive")
	}
	return nil
}
