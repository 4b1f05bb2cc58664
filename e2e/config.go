package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_VERBOSE dumps the mounted tree after every step
	Verbose bool `envconfig:"E2E_VERBOSE" default:"false"`
	// E2E_SETTLE bounds how long a step waits for the tree to change
	Settle time.Duration `envconfig:"E2E_SETTLE" default:"2s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
