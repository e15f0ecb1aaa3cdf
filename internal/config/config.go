package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"linkshelf/internal/domain"
)

// ErrMissingSetting is returned when a value required by a command is absent.
var ErrMissingSetting = errors.New("missing configuration setting")

// Backend identifies the link store implementation.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendLocal  Backend = "local"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	BadgerDBPath     string `mapstructure:"BADGERDB_PATH"`
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	HTTPAddr         string `mapstructure:"HTTP_ADDR"`
	JWTSecret        string `mapstructure:"JWT_SECRET"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	LogFormat        string `mapstructure:"LOG_FORMAT"`
	OEmbedEndpoint   string `mapstructure:"OEMBED_ENDPOINT"`
	LocalUserID      string `mapstructure:"LOCAL_USER_ID"`
}

var keys = []string{
	"GEMINI_API_KEY",
	"DATABASE_URL",
	"BADGERDB_PATH",
	"TELEGRAM_BOT_TOKEN",
	"HTTP_ADDR",
	"JWT_SECRET",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"OEMBED_ENDPOINT",
	"LOCAL_USER_ID",
}

// LoadConfig reads configuration from a .env file, a config file in path and
// environment variables, in increasing order of precedence.
func LoadConfig(path string) (Config, error) {
	// A missing .env is the normal case in production.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only applies to keys viper already knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetDefault("BADGERDB_PATH", "./badger_data")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOCAL_USER_ID", domain.LocalUser.ID)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return cfg, nil
}

// Backend reports which link store to use. It is decided once at startup.
func (c Config) Backend() Backend {
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return BackendRemote
	}
	return BackendLocal
}

// AnalysisEnabled reports whether an AI credential is configured.
func (c Config) AnalysisEnabled() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// AuthEnabled reports whether bearer tokens must be verified.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Require returns ErrMissingSetting if the named value is empty.
func Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", ErrMissingSetting, name)
	}
	return nil
}
