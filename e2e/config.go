package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_WEBSOCKET routes every client through the websocket server instead
	// of the in-process hub
	Websocket bool `envconfig:"E2E_WEBSOCKET" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_DEBUG_STATE dumps the state of each client after every step
	DebugState bool   `envconfig:"E2E_DEBUG_STATE" default:"false"`
	LogLevel   string `envconfig:"E2E_LOG_LEVEL" default:"ERROR"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
