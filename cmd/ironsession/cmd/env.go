package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironsession/authapi"
	"github.com/jmcleod/ironsession/biometric"
	"github.com/jmcleod/ironsession/internal/config"
	"github.com/jmcleod/ironsession/internal/logging"
	"github.com/jmcleod/ironsession/internal/util"
	"github.com/jmcleod/ironsession/securestore"
	"github.com/jmcleod/ironsession/session"
	bboltstorage "github.com/jmcleod/ironsession/storage/bbolt"
)

const (
	dbFile        = "session.db"
	deviceKeyFile = "device.key"
)

// environment is everything a command needs, with the session already
// restored from the store.
type environment struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *bboltstorage.Store
	store    *securestore.Store
	verifier *biometric.Static
	manager  *session.Manager
	intent   session.Intent
}

func openEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cmd.ErrOrStderr())

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, dbFile), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential storage: %w", err)
	}

	store, err := openStore(cfg, repo)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	types, err := cfg.BiometricTypes()
	if err != nil {
		store.Close()
		_ = repo.Close()
		return nil, err
	}
	verifier := biometric.Unavailable()
	if len(types) > 0 {
		verifier = &biometric.Static{Hardware: true, Enrolled: true, Types: types, Succeed: true}
	}

	api := authapi.New(cfg.APIURL,
		authapi.WithTimeout(cfg.HTTPTimeout),
		authapi.WithUserAgent("ironsession/"+Version),
	)
	manager := session.New(store, verifier, api, session.WithLogger(logger))

	env := &environment{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		store:    store,
		verifier: verifier,
		manager:  manager,
	}
	env.intent = manager.Restore(cmd.Context())
	return env, nil
}

func openStore(cfg *config.Config, repo *bboltstorage.Store) (*securestore.Store, error) {
	deviceKey, err := securestore.LoadOrCreateDeviceKey(filepath.Join(cfg.DataDir, deviceKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load device key: %w", err)
	}
	defer util.WipeBytes(deviceKey)

	wrappingKey, err := securestore.DeriveWrappingKey(deviceKey, cfg.StorePassphrase, securestore.DefaultArgon2idParams())
	if err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}
	defer util.WipeBytes(wrappingKey)

	store, err := securestore.Open(repo, wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return store, nil
}

func (e *environment) Close() {
	e.store.Close()
	if err := e.repo.Close(); err != nil {
		e.logger.Warn("closing credential storage", "error", err)
	}
}

func (e *environment) platform() biometric.Platform {
	return biometric.Platform(e.cfg.Platform)
}

// withEnvironment adapts a command body that needs an open environment.
func withEnvironment(fn func(ctx context.Context, cmd *cobra.Command, env *environment, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(cmd.Context(), cmd, env, args)
	}
}
