package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/agenda/internal/config"
	"github.com/roach88/agenda/internal/engine"
	"github.com/roach88/agenda/internal/logger"
	"github.com/roach88/agenda/internal/store"
)

// redisPingTimeout bounds the startup connectivity check.
const redisPingTimeout = 3 * time.Second

// App is everything a store-backed command needs, built from the merged
// configuration.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	Store  *store.Store
	Engine *engine.Engine

	redis *redis.Client
}

// loadConfig merges flags, environment and config file.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openApp loads configuration and opens the store, the optional Redis
// locker and the engine. Callers must Close the returned App.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	if opts.Verbose {
		log, err = logger.New(cfg.LogMode)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
		}
	}

	st, err := store.Open(cfg.DB, store.WithLogger(log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.DB), err)
	}

	app := &App{Config: cfg, Log: log, Store: st}

	engineOpts := []engine.Option{
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithLogger(log),
	}
	if cfg.AtomicPrograms {
		engineOpts = append(engineOpts, engine.WithAtomicPrograms())
	}

	if cfg.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := app.redis.Ping(pingCtx).Err(); err != nil {
			_ = app.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to reach redis at %s", cfg.RedisAddr), err)
		}

		engineOpts = append(engineOpts, engine.WithLocker(engine.NewRedisLocker(app.redis, engine.RedisLockerOptions{
			TTL:    cfg.LockTTL,
			Logger: log,
		})))
		log.Debug("using redis participant locks", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
	}

	app.Engine = engine.New(st, engineOpts...)
	return app, nil
}

// Close releases the store and Redis connections and flushes logs.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	a.Log.Sync()
	return errors.Join(errs...)
}
