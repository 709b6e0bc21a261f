// Package config loads agenda's runtime settings.
//
// Sources, highest precedence first:
//   - command-line flags that were set explicitly
//   - AGENDA_* environment variables (a .env file is loaded into the
//     environment first, without overriding variables already set)
//   - the YAML config file given with --config
//   - defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "AGENDA"

// Defaults.
const (
	DefaultDB       = "agenda.db"
	DefaultLogMode  = "dev"
	DefaultLockTTL  = 10 * time.Second
	DefaultMaxSteps = 1000
	DefaultEnvFile  = ".env"
)

// Config holds agenda's runtime settings.
type Config struct {
	// DB is the SQLite database path.
	DB string `mapstructure:"db" validate:"required"`

	// LogMode selects the log encoder: "dev" or "prod".
	LogMode string `mapstructure:"log_mode" validate:"oneof=dev development prod production"`

	// RedisAddr enables the Redis participant lock when set.
	RedisAddr string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`

	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`

	// MaxSteps is the auto-pick quota per selection.
	MaxSteps int `mapstructure:"max_steps" validate:"gt=0"`

	// AtomicPrograms makes program updates all-or-nothing.
	AtomicPrograms bool `mapstructure:"atomic_programs"`
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string

	// EnvFile is loaded into the environment when it exists.
	// Empty means DefaultEnvFile.
	EnvFile string

	// Flags are bound by name: db, log-mode, redis-addr, lock-ttl,
	// max-steps, atomic-programs. Missing flags are ignored.
	Flags *pflag.FlagSet
}

var flagKeys = map[string]string{
	"db":              "db",
	"log-mode":        "log_mode",
	"redis-addr":      "redis_addr",
	"lock-ttl":        "lock_ttl",
	"max-steps":       "max_steps",
	"atomic-programs": "atomic_programs",
}

// Load reads configuration from all sources and validates it.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetDefault("db", DefaultDB)
	v.SetDefault("log_mode", DefaultLogMode)
	v.SetDefault("redis_addr", "")
	v.SetDefault("lock_ttl", DefaultLockTTL)
	v.SetDefault("max_steps", DefaultMaxSteps)
	v.SetDefault("atomic_programs", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
