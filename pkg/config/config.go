// Package config holds the engine configuration read from YAML.
package config

import (
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gnana997/tsrewrite/pkg/util"
)

// Config is the engine configuration.
//
// Example:
//
//	logging:
//	  level: info
//	  format: json
//	parser:
//	  pool_size: 0
//	query:
//	  cache_size: 128
//	transform:
//	  max_passes: 100
//	  whole_match_capture: from
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Parser    ParserConfig    `yaml:"parser"`
	Query     QueryConfig     `yaml:"query"`
	Transform TransformConfig `yaml:"transform"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// ParserConfig sizes the parser pools.
type ParserConfig struct {
	// PoolSize is the number of parsers kept per language. 0 selects a
	// CPU-derived size.
	PoolSize int `yaml:"pool_size" validate:"gte=0,lte=256"`
}

// QueryConfig sizes the compiled query cache.
type QueryConfig struct {
	CacheSize int `yaml:"cache_size" validate:"gte=1,lte=65536"`
}

// TransformConfig holds transformation defaults.
type TransformConfig struct {
	MaxPasses         int    `yaml:"max_passes" validate:"gte=1,lte=10000"`
	WholeMatchCapture string `yaml:"whole_match_capture" validate:"required,capture"`

	// BatchLimit bounds concurrent jobs in a batch. 0 selects a CPU-derived
	// limit.
	BatchLimit int `yaml:"batch_limit" validate:"gte=0"`
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	// Capture names are written without the leading '@'.
	_ = configValidate.RegisterValidation("capture", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		for _, r := range name {
			if r == '@' || r == ' ' || r == '\t' || r == '\n' || r == '(' || r == ')' {
				return false
			}
		}
		return true
	})
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  string(util.LevelInfo),
			Format: string(util.FormatJSON),
		},
		Parser: ParserConfig{PoolSize: 0},
		Query:  QueryConfig{CacheSize: 128},
		Transform: TransformConfig{
			MaxPasses:         100,
			WholeMatchCapture: "from",
		},
	}
}

// Parse decodes YAML over the defaults and validates the result. Keys
// missing from data keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and names.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoggerConfig converts the logging section for util.NewLogger. A nil out
// keeps the default output.
func (c *Config) LoggerConfig(out io.Writer) util.LoggerConfig {
	lc := util.DefaultLoggerConfig()
	if c.Logging.Level != "" {
		lc.Level = util.LogLevel(c.Logging.Level)
	}
	if c.Logging.Format != "" {
		lc.Format = util.LogFormat(c.Logging.Format)
	}
	if out != nil {
		lc.Output = out
	}
	return lc
}
