// Package config loads server settings from the environment and the
// animation table from YAML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"skirmish/server/internal/animation"
	"skirmish/server/logging"
)

// Server is the process configuration.
type Server struct {
	Addr               string        `env:"SKIRMISH_ADDR"                 envDefault:":8080"`
	TickRate           int           `env:"SKIRMISH_TICK_RATE"            envDefault:"15"`
	CatchupMaxTicks    int           `env:"SKIRMISH_CATCHUP_MAX_TICKS"    envDefault:"3"`
	KeyframeInterval   int           `env:"SKIRMISH_KEYFRAME_INTERVAL"    envDefault:"30"`
	TimestampTolerance time.Duration `env:"SKIRMISH_TIMESTAMP_TOLERANCE"  envDefault:"5s"`
	ComboWindowMin     float64       `env:"SKIRMISH_COMBO_WINDOW_MIN"     envDefault:"0.3"`
	QueueCapacity      int           `env:"SKIRMISH_QUEUE_CAPACITY"       envDefault:"1024"`
	PerConnectionLimit int           `env:"SKIRMISH_PER_CONNECTION_LIMIT" envDefault:"32"`
	RateLimit          float64       `env:"SKIRMISH_RATE_LIMIT"           envDefault:"30"`
	RateBurst          int           `env:"SKIRMISH_RATE_BURST"           envDefault:"10"`
	AnimationsFile     string        `env:"SKIRMISH_ANIMATIONS_FILE"`
	LogSinks           []string      `env:"SKIRMISH_LOG_SINKS"            envDefault:"console" envSeparator:","`
	LogJSONPath        string        `env:"SKIRMISH_LOG_JSON_PATH"`
	LogLevel           string        `env:"SKIRMISH_LOG_LEVEL"            envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks ranges that env parsing cannot express.
func (c Server) Validate() error {
	var errs []error
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick rate must be positive, got %d", c.TickRate))
	}
	if c.KeyframeInterval <= 0 {
		errs = append(errs, fmt.Errorf("keyframe interval must be positive, got %d", c.KeyframeInterval))
	}
	if c.TimestampTolerance <= 0 {
		errs = append(errs, fmt.Errorf("timestamp tolerance must be positive, got %s", c.TimestampTolerance))
	}
	if c.ComboWindowMin < 0 {
		errs = append(errs, fmt.Errorf("combo window minimum must not be negative, got %g", c.ComboWindowMin))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity))
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate limit %g/%d must be positive", c.RateLimit, c.RateBurst))
	}
	if _, err := c.Severity(); err != nil {
		errs = append(errs, err)
	}
	for _, sink := range c.LogSinks {
		if sink == "json" && c.LogJSONPath == "" {
			errs = append(errs, errors.New("json log sink requires SKIRMISH_LOG_JSON_PATH"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Severity maps LogLevel onto the logging severities.
func (c Server) Severity() (logging.Severity, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logging.SeverityDebug, nil
	case "", "info":
		return logging.SeverityInfo, nil
	case "warn", "warning":
		return logging.SeverityWarn, nil
	case "error":
		return logging.SeverityError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}

// Logging builds the router configuration.
func (c Server) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.LogSinks) > 0 {
		cfg.EnabledSinks = append([]string(nil), c.LogSinks...)
	}
	if severity, err := c.Severity(); err == nil {
		cfg.MinimumSeverity = severity
	}
	cfg.JSON.FilePath = c.LogJSONPath
	cfg.Fields = map[string]any{"tickRate": c.TickRate}
	return cfg
}

// Animations loads the configured table, falling back to the built-in one.
func (c Server) Animations() (animation.Table, error) {
	if c.AnimationsFile == "" {
		table := animation.DefaultTable()
		if err := table.Validate(c.ComboWindowMin); err != nil {
			return nil, err
		}
		return table, nil
	}
	return LoadAnimations(c.AnimationsFile, c.ComboWindowMin)
}
