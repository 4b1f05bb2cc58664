package internal

import (
	"afterglow/errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	LogLevel        string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	MountID         string        `env:"MOUNT_ID,default=app"`
	InitialPath     string        `env:"INITIAL_PATH"`
	HistoryPath     string        `env:"HISTORY_PATH"`
	ScriptPath      string        `env:"SCRIPT_PATH"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=1s" validate:"gt=0"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	EjectTimeout    time.Duration `env:"EJECT_TIMEOUT,default=5s" validate:"gt=0"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081" validate:"gte=0,lte=65535"`
	Colours         bool          `env:"COLOURS,default=true"`
}

// LoadConfig reads the configuration from the process environment and validates it.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("%w: %w", errors.ErrConfig, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfig, err)
	}
	return nil
}
