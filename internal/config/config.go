// Package config loads husk.yaml, .env and HUSK_* environment settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/morozRed/husk/internal/resolver"
	"github.com/morozRed/husk/internal/shaker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file name without extension.
	FileName = "husk"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HUSK"
)

// Config is the complete build configuration.
type Config struct {
	Features          FeaturesConfig    `mapstructure:"features"`
	Globals           []string          `mapstructure:"globals"`
	Ignore            []string          `mapstructure:"ignore"`
	IgnoreImports     []string          `mapstructure:"ignore_imports"`
	Aliases           map[string]string `mapstructure:"aliases"`
	Extensions        []string          `mapstructure:"extensions"`
	Tags              []TagConfig       `mapstructure:"tags"`
	ClassNamePrefix   string            `mapstructure:"class_name_prefix"`
	OutDir            string            `mapstructure:"out_dir"`
	Concurrency       int               `mapstructure:"concurrency"`
	TrackDependencies bool              `mapstructure:"track_dependencies"`
	LogLevel          string            `mapstructure:"log_level"`

	// Root is the directory the configuration was loaded for.
	Root string `mapstructure:"-"`
	// File is the config file used, if any.
	File string `mapstructure:"-"`
}

// FeaturesConfig toggles reduction behaviour.
type FeaturesConfig struct {
	SoftErrors           bool `mapstructure:"soft_errors"`
	SideEffectRemoval    bool `mapstructure:"side_effect_removal"`
	DangerousCodeRemover bool `mapstructure:"dangerous_code_remover"`
}

// TagConfig binds an imported tag to a processor. Processor "ignore" marks
// the tag as recognised but left untouched.
type TagConfig struct {
	Module    string `mapstructure:"module"`
	Import    string `mapstructure:"import"`
	Processor string `mapstructure:"processor"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	Dir        string   // project root; defaults to the working directory
	ConfigFile string   // explicit config file, overrides discovery
	Fs         afero.Fs // defaults to the OS filesystem
}

// Load reads configuration for a project.
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
		if err := loadEnvFile(dir); err != nil {
			log.Debug().Err(err).Msg("No .env file loaded")
		}
	}

	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || opts.ConfigFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Str("dir", dir).Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Root = dir
	cfg.File = v.ConfigFileUsed()
	if cfg.OutDir != "" && !filepath.IsAbs(cfg.OutDir) {
		cfg.OutDir = filepath.Join(dir, cfg.OutDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default(dir string) *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.Root = dir
	cfg.OutDir = filepath.Join(dir, cfg.OutDir)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("features.soft_errors", false)
	v.SetDefault("features.side_effect_removal", false)
	v.SetDefault("features.dangerous_code_remover", true)
	v.SetDefault("globals", shaker.DefaultGlobals)
	v.SetDefault("ignore", []string{})
	v.SetDefault("ignore_imports", []string{})
	v.SetDefault("aliases", map[string]string{})
	v.SetDefault("extensions", resolver.DefaultExtensions)
	v.SetDefault("tags", []map[string]string{
		{"module": "husk", "import": "css", "processor": "css"},
	})
	v.SetDefault("class_name_prefix", "")
	v.SetDefault("out_dir", filepath.Join(".husk", "out"))
	v.SetDefault("concurrency", 0)
	v.SetDefault("track_dependencies", true)
	v.SetDefault("log_level", "info")
}

// Validate checks values that decoding alone cannot.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be zero or positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extensions[%d]: %q must start with a dot", i, ext)
		}
	}
	for i, tag := range c.Tags {
		if tag.Module == "" || tag.Import == "" {
			return fmt.Errorf("tags[%d]: module and import are required", i)
		}
		if tag.Processor == "" {
			return fmt.Errorf("tags[%d]: processor is required", i)
		}
	}
	return nil
}

// loadEnvFile loads environment variables from the project's .env file
func loadEnvFile(dir string) error {
	for _, name := range []string{".env", ".env.local"} {
		location := filepath.Join(dir, name)
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}
	return fmt.Errorf("no .env file found")
}
