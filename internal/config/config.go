// Package config loads the aedetect command configuration.
//
// Sources, highest priority first:
//  1. command-line flags that were set explicitly
//  2. AEDETECT_* environment variables (AEDETECT_DETECTOR_ROLL_LEN, ...)
//  3. the YAML config file, when given
//  4. built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hed1ad/aedetect/pkg/detectors"
)

// Config is the full command configuration.
type Config struct {
	Detector detectors.Config `mapstructure:"detector" yaml:"detector"`
	Input    InputConfig      `mapstructure:"input" yaml:"input"`
	Output   OutputConfig     `mapstructure:"output" yaml:"output"`
	Log      LogConfig        `mapstructure:"log" yaml:"log"`
}

// InputConfig selects how the series is read.
type InputConfig struct {
	// Format is "csv" or "pcap"; empty infers it from the file extension.
	Format string        `mapstructure:"format" yaml:"format"`
	Column string        `mapstructure:"column" yaml:"column"`
	Header bool          `mapstructure:"header" yaml:"header"`
	Metric string        `mapstructure:"metric" yaml:"metric"`
	Bucket time.Duration `mapstructure:"bucket" yaml:"bucket"`
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	All    bool   `mapstructure:"all" yaml:"all"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Detector: detectors.DefaultConfig(),
		Input: InputConfig{
			Header: true,
			Metric: "packet_size",
			Bucket: time.Second,
		},
		Output: OutputConfig{Format: "text"},
		Log:    LogConfig{Level: "warn", Format: "console"},
	}
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"roll-len":      "detector.roll_len",
	"ratio":         "detector.ratio",
	"compress-rate": "detector.compress_rate",
	"batch-size":    "detector.batch_size",
	"epochs":        "detector.epochs",
	"verbose":       "detector.verbose",
	"sub-scalef":    "detector.sub_scalef",
	"seed":          "detector.seed",
	"format":        "input.format",
	"column":        "input.column",
	"header":        "input.header",
	"metric":        "input.metric",
	"bucket":        "input.bucket",
	"output":        "output.format",
	"all":           "output.all",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// Load merges defaults, the config file at path (optional), environment
// variables and the flags in fs that were set. A missing file is not an error.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AEDETECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("detector.roll_len", d.Detector.RollLen)
	v.SetDefault("detector.ratio", d.Detector.Ratio)
	v.SetDefault("detector.compress_rate", d.Detector.CompressRate)
	v.SetDefault("detector.batch_size", d.Detector.BatchSize)
	v.SetDefault("detector.epochs", d.Detector.Epochs)
	v.SetDefault("detector.verbose", d.Detector.Verbose)
	v.SetDefault("detector.sub_scalef", d.Detector.SubScaleF)
	v.SetDefault("detector.seed", d.Detector.RandomSeed)

	v.SetDefault("input.format", d.Input.Format)
	v.SetDefault("input.column", d.Input.Column)
	v.SetDefault("input.header", d.Input.Header)
	v.SetDefault("input.metric", d.Input.Metric)
	v.SetDefault("input.bucket", d.Input.Bucket)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.all", d.Output.All)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Detector.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Input.Format {
	case "", "csv", "pcap":
	default:
		errs = append(errs, fmt.Errorf("input.format must be csv or pcap, got %q", c.Input.Format))
	}
	switch c.Output.Format {
	case "text", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output.format must be text, json or yaml, got %q", c.Output.Format))
	}

	return errors.Join(errs...)
}
