// Package config loads the YAML file that configures a recognizer.
package config

import (
	"io"
	"log/slog"
	"math"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/decoder"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/linguist"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the slog level for l. The empty level is info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the top-level configuration.
//
//	log_level: debug
//	log_base: 1.0001
//	acoustic:
//	  variance_floor: 0.0001
//	linguist:
//	  word_insertion_probability: 0.7
//	  language_weight: 7
//	decoder:
//	  beam_width: 200
type Config struct {
	LogLevel LogLevel `yaml:"log_level"`
	// LogBase is the base of every log probability. Zero means e.
	LogBase float64 `yaml:"log_base"`

	Acoustic acoustic.Config `yaml:"acoustic"`
	Linguist linguist.Config `yaml:"linguist"`
	Decoder  decoder.Config  `yaml:"decoder"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Acoustic: acoustic.DefaultConfig(),
		Linguist: linguist.DefaultConfig(),
		Decoder:  decoder.DefaultConfig(),
	}
}

// LogMath returns the LogMath for LogBase.
func (c *Config) LogMath() (*mathutil.LogMath, error) {
	if c.LogBase == 0 || c.LogBase == math.E {
		return mathutil.Natural(), nil
	}
	return mathutil.NewLogMath(c.LogBase)
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel.Level()}))
}
