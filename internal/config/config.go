// Package config holds lexgen settings. Values come from defaults, then the
// YAML config file, then LEXGEN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"lexgen/internal/lexer"
)

const DefaultFile = ".lexgen.yaml"

type Config struct {
	Debug         bool `yaml:"debug"`
	Minimize      bool `yaml:"minimize"`
	KeepDeadState bool `yaml:"keepDeadState"`
	// MaxRanges caps the alphabet size; 0 leaves only the index limit.
	MaxRanges int  `yaml:"maxRanges"`
	Color     bool `yaml:"color"`
}

func Default() Config {
	return Config{Minimize: true, Color: true}
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap lists the environment variables and their effective values.
func (c Config) AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LEXGEN_DEBUG":           {"LEXGEN_DEBUG", c.Debug, "Log construction stages at debug level (e.g. LEXGEN_DEBUG=1)"},
		"LEXGEN_MINIMIZE":        {"LEXGEN_MINIMIZE", c.Minimize, "Minimize the DFA (default true)"},
		"LEXGEN_MAX_RANGES":      {"LEXGEN_MAX_RANGES", c.MaxRanges, "Maximum number of alphabet ranges (default: index limit)"},
		"LEXGEN_KEEP_DEAD_STATE": {"LEXGEN_KEEP_DEAD_STATE", c.KeepDeadState, "Keep the dead state in compiled tables"},
		"LEXGEN_COLOR":           {"LEXGEN_COLOR", c.Color, "Colour scan output (default true)"},
	}
}

// clean strips quotes and spaces from an environment value.
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

// Load reads path over the defaults and applies the environment. A missing
// file is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	c := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return c, err
	}

	return c, c.ApplyEnv()
}

// ApplyEnv overrides c from LEXGEN_* variables. Invalid values are reported
// and leave the setting unchanged.
func (c *Config) ApplyEnv() error {
	var errs []error
	boolVar := func(key string, dst *bool) {
		v := clean(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid setting %s=%q: %w", key, v, err))
			return
		}
		*dst = b
	}

	// LEXGEN_DEBUG follows the usual convention that any unparsable value
	// turns it on.
	if debug := clean("LEXGEN_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		c.Debug = err != nil || d
	}
	boolVar("LEXGEN_MINIMIZE", &c.Minimize)
	boolVar("LEXGEN_KEEP_DEAD_STATE", &c.KeepDeadState)
	boolVar("LEXGEN_COLOR", &c.Color)

	if v := clean("LEXGEN_MAX_RANGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("invalid setting LEXGEN_MAX_RANGES=%q: must be a non-negative integer", v))
		} else {
			c.MaxRanges = n
		}
	}
	return errors.Join(errs...)
}

// Write stores c as YAML at path, or at DefaultFile when path is empty.
func Write(path string, c Config) error {
	if path == "" {
		path = DefaultFile
	}
	d, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}

func (c Config) LexerOptions(logger *zap.Logger) []lexer.Option {
	return []lexer.Option{
		lexer.WithLogger(logger),
		lexer.WithMinimize(c.Minimize),
		lexer.WithKeepDeadState(c.KeepDeadState),
		lexer.WithMaxRanges(c.MaxRanges),
	}
}

// Logger builds the CLI logger: development output when debugging,
// otherwise production JSON limited to warnings.
func (c Config) Logger() (*zap.Logger, error) {
	if c.Debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
