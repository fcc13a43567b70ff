package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	APIBaseURL      string        `envconfig:"API_BASE_URL" default:"http://localhost:3001"`
	WebSocketURL    string        `envconfig:"WS_URL" default:"ws://localhost:3001/socket"`
	CredentialsFile string        `envconfig:"CREDENTIALS_FILE" default:""` // empty means $HOME/.shipment/credentials.json
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
