package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Daikin   ProviderConfig `json:"daikin"`
	Netatmo  ProviderConfig `json:"netatmo"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`
}

// ProviderConfig contains the OAuth2 and API settings for one cloud provider.
// Client credentials and the redirect URI are required; endpoints default to
// the provider's production URLs when left empty.
type ProviderConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`
	AuthorizeURL string `json:"authorize_url"`
	TokenURL     string `json:"token_url"`
	APIBase      string `json:"api_base"`
	Scope        string `json:"scope"`
}

// Production endpoint defaults.
const (
	daikinAuthorizeURL = "https://idp.onecta.daikineurope.com/v1/oidc/authorize"
	daikinTokenURL     = "https://idp.onecta.daikineurope.com/v1/oidc/token"
	daikinAPIBase      = "https://api.onecta.daikineurope.com/v1"
	daikinScope        = "openid onecta:basic.integration"

	netatmoAuthorizeURL = "https://api.netatmo.com/oauth2/authorize"
	netatmoTokenURL     = "https://api.netatmo.com/oauth2/token"
	netatmoAPIBase      = "https://api.netatmo.com/api"
	netatmoScope        = "read_thermostat write_thermostat"
)

// Validate validates the configuration and fills in endpoint defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	c.Daikin.applyDefaults(daikinAuthorizeURL, daikinTokenURL, daikinAPIBase, daikinScope)
	c.Netatmo.applyDefaults(netatmoAuthorizeURL, netatmoTokenURL, netatmoAPIBase, netatmoScope)

	if err := c.Daikin.validate("daikin"); err != nil {
		return err
	}
	if err := c.Netatmo.validate("netatmo"); err != nil {
		return err
	}

	return nil
}

func (p *ProviderConfig) applyDefaults(authorizeURL, tokenURL, apiBase, scope string) {
	if p.AuthorizeURL == "" {
		p.AuthorizeURL = authorizeURL
	}
	if p.TokenURL == "" {
		p.TokenURL = tokenURL
	}
	if p.APIBase == "" {
		p.APIBase = apiBase
	}
	if p.Scope == "" {
		p.Scope = scope
	}
}

func (p *ProviderConfig) validate(name string) error {
	if p.ClientID == "" || p.ClientSecret == "" {
		return fmt.Errorf("%w: %s client credentials are required", ErrInvalidConfig, name)
	}
	if p.RedirectURI == "" {
		return fmt.Errorf("%w: %s redirect URI is required", ErrInvalidConfig, name)
	}
	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("ACSA_HOST", "0.0.0.0"),
			Port: getEnvInt("ACSA_PORT", 5000),
		},
		Database: DatabaseConfig{
			Path: getEnv("ACSA_DB_PATH", "./homeconnect.db"),
		},
		Logging: LoggingConfig{
			Format: getEnv("ACSA_LOG_FORMAT", "json"),
			Level:  getEnv("ACSA_LOG_LEVEL", "info"),
		},
		Daikin: ProviderConfig{
			ClientID:     getEnv("ACSA_DAIKIN_CLIENT_ID", ""),
			ClientSecret: getEnv("ACSA_DAIKIN_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("ACSA_DAIKIN_REDIRECT_URI", ""),
			AuthorizeURL: getEnv("ACSA_DAIKIN_AUTHORIZE_URL", ""),
			TokenURL:     getEnv("ACSA_DAIKIN_TOKEN_URL", ""),
			APIBase:      getEnv("ACSA_DAIKIN_API_BASE", ""),
			Scope:        getEnv("ACSA_DAIKIN_SCOPE", ""),
		},
		Netatmo: ProviderConfig{
			ClientID:     getEnv("ACSA_NETATMO_CLIENT_ID", ""),
			ClientSecret: getEnv("ACSA_NETATMO_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("ACSA_NETATMO_REDIRECT_URI", ""),
			AuthorizeURL: getEnv("ACSA_NETATMO_AUTHORIZE_URL", ""),
			TokenURL:     getEnv("ACSA_NETATMO_TOKEN_URL", ""),
			APIBase:      getEnv("ACSA_NETATMO_API_BASE", ""),
			Scope:        getEnv("ACSA_NETATMO_SCOPE", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}
