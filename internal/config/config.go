// Package config loads studo settings from the environment and an optional .env file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrInvalidContinuationKey is returned when STUDO_CONTINUATION_KEY is not valid base64
	ErrInvalidContinuationKey = errors.New("continuation key must be base64")
)

// ClientConfig configures the CLI presenter
type ClientConfig struct {
	FrontendAPI     string        `env:"STUDO_FRONTEND_API" envDefault:"http://localhost:8080"`
	CallbackURL     string        `env:"STUDO_OAUTH_CALLBACK_URL"`
	ReturnURL       string        `env:"STUDO_RETURN_URL" envDefault:"studo://oauth/callback"`
	StateDir        string        `env:"STUDO_STATE_DIR"`
	ContinuationKey string        `env:"STUDO_CONTINUATION_KEY"`
	HTTPTimeout     time.Duration `env:"STUDO_HTTP_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"STUDO_LOG_LEVEL" envDefault:"warn"`
	LogFormat       string        `env:"STUDO_LOG_FORMAT" envDefault:"text"`
}

// ContinuationKeyBytes decodes the continuation key. An empty key returns nil,
// which makes the controller generate a per-process key.
func (c ClientConfig) ContinuationKeyBytes() ([]byte, error) {
	if c.ContinuationKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.ContinuationKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContinuationKey, err)
	}
	return key, nil
}

// IDPConfig configures the dev identity service
type IDPConfig struct {
	Addr    string `env:"STUDO_IDP_ADDR" envDefault:":8080"`
	BaseURL string `env:"STUDO_IDP_BASE_URL" envDefault:"http://localhost:8080"`

	GoogleClientID     string `env:"STUDO_IDP_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"STUDO_IDP_GOOGLE_CLIENT_SECRET"`
	GithubClientID     string `env:"STUDO_IDP_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"STUDO_IDP_GITHUB_CLIENT_SECRET"`

	SeedEmail     string `env:"STUDO_IDP_SEED_EMAIL"`
	SeedPassword  string `env:"STUDO_IDP_SEED_PASSWORD"`
	SeedFirstName string `env:"STUDO_IDP_SEED_FIRST_NAME"`
	SeedLastName  string `env:"STUDO_IDP_SEED_LAST_NAME"`

	LogLevel  string `env:"STUDO_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"STUDO_LOG_FORMAT" envDefault:"text"`
}

// Load reads dotenv files (missing files are ignored) and then parses the
// environment into cfg. Variables already set in the environment win.
func Load[T any](cfg *T, dotenvFiles ...string) error {
	if len(dotenvFiles) == 0 {
		_ = godotenv.Load()
	}
	for _, f := range dotenvFiles {
		_ = godotenv.Load(f)
	}
	if err := env.Parse(cfg); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

func LoadClient(dotenvFiles ...string) (ClientConfig, error) {
	var cfg ClientConfig
	err := Load(&cfg, dotenvFiles...)
	return cfg, err
}

func LoadIDP(dotenvFiles ...string) (IDPConfig, error) {
	var cfg IDPConfig
	err := Load(&cfg, dotenvFiles...)
	return cfg, err
}
