package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "GUESTWATCH"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "guestwatch.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultTokenTTLMinutes = 720
	defaultAgencyName      = "Security Command"
	defaultReceptionUser   = "reception"
	defaultReceptionSecret = "1234"
	defaultPoliceUser      = "police"
	defaultPoliceSecret    = "police@1234"
)

// AccountConfig is one fixed console login.
type AccountConfig struct {
	Username string
	Password string
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	SigningSecret  string
	TokenTTL       time.Duration
	Reception      AccountConfig
	Police         AccountConfig
	AgencyName     string
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
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("accounts.reception.username", defaultReceptionUser)
	configViper.SetDefault("accounts.reception.password", defaultReceptionSecret)
	configViper.SetDefault("accounts.police.username", defaultPoliceUser)
	configViper.SetDefault("accounts.police.password", defaultPoliceSecret)
	configViper.SetDefault("console.agency_name", defaultAgencyName)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		Reception: AccountConfig{
			Username: configViper.GetString("accounts.reception.username"),
			Password: configViper.GetString("accounts.reception.password"),
		},
		Police: AccountConfig{
			Username: configViper.GetString("accounts.police.username"),
			Password: configViper.GetString("accounts.police.password"),
		},
		AgencyName: configViper.GetString("console.agency_name"),
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
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.Reception.Username) == "" || c.Reception.Password == "" {
		return fmt.Errorf("accounts.reception.username and accounts.reception.password are required")
	}
	if strings.TrimSpace(c.Police.Username) == "" || c.Police.Password == "" {
		return fmt.Errorf("accounts.police.username and accounts.police.password are required")
	}
	if strings.EqualFold(strings.TrimSpace(c.Reception.Username), strings.TrimSpace(c.Police.Username)) {
		return fmt.Errorf("reception and police accounts must use different usernames")
	}
	return nil
}
