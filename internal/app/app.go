// Package app wires the application together: one explicit context object
// owning the identity, index, registry and cloud exchange, constructed once
// and passed to consumers.
package app

import (
	"context"
	"fmt"

	"github.com/skydrive-app/skydrive/internal/cloudcfg"
	"github.com/skydrive-app/skydrive/internal/config"
	"github.com/skydrive-app/skydrive/internal/cryptox"
	"github.com/skydrive-app/skydrive/internal/filex"
	"github.com/skydrive-app/skydrive/internal/identity"
	"github.com/skydrive-app/skydrive/internal/index"
	"github.com/skydrive-app/skydrive/internal/logging"
	"github.com/skydrive-app/skydrive/internal/randx"
	"github.com/skydrive-app/skydrive/internal/registry"
	"github.com/skydrive-app/skydrive/internal/remote"
)

// App owns every long-lived component. One instance per process.
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Device   *identity.Device
	Storage  remote.Storage
	Index    *index.Store
	Registry *registry.Registry
	Exchange *cloudcfg.Exchange
}

// Options carries inputs that cannot come from the config file.
type Options struct {
	// Passphrase wraps the index key instead of the machine id when
	// config.UsePassphrase is set. Wiped after use.
	Passphrase []byte
}

// New constructs and wires the application in dependency order.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (*App, error) {
	if err := filex.EnsureDir(cfg.ConfigDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}

	device, err := identity.Load(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load device identity: %w", err)
	}
	logger = logger.With("device_id", device.ID)

	storage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	key, err := resolveIndexKey(cfg, opts.Passphrase)
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(ctx, index.Options{
		Path:    cfg.IndexPath(),
		Key:     key,
		Logger:  logger,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	reg := registry.New(registry.Options{
		DocumentPath: cfg.RegistryPath(),
		JobsDir:      cfg.JobsDir(),
		CacheDir:     cfg.CacheDir(),
		Device:       device,
		Logger:       logger,
	})

	exchange := cloudcfg.New(storage, reg, device, cfg.CloudConfigDir, logger)
	reg.SetExporter(exchange)

	if err := reg.Load(ctx); err != nil {
		_ = idx.Close(ctx)
		return nil, fmt.Errorf("load registry: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Device:   device,
		Storage:  storage,
		Index:    idx,
		Registry: reg,
		Exchange: exchange,
	}, nil
}

func buildStorage(ctx context.Context, cfg *config.Config, logger logging.Logger) (remote.Storage, error) {
	if cfg.UseS3() {
		s, err := remote.NewS3Storage(ctx, remote.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 backend: %w", err)
		}
		return s, nil
	}
	return remote.NewCLIStorage(cfg.RcloneBinary, cfg.RemoteName, logger), nil
}

// resolveIndexKey loads the wrapped index key, creating it on first run.
// Returns nil when at-rest encryption is disabled.
func resolveIndexKey(cfg *config.Config, passphrase []byte) ([]byte, error) {
	if !cfg.EncryptIndex {
		return nil, nil
	}

	secret := passphrase
	if len(secret) == 0 {
		secret = cryptox.MachineSecret()
	} else {
		defer randx.Wipe(passphrase)
	}

	key, err := cryptox.LoadKey(cfg.KeyfilePath(), secret)
	if err != nil {
		return nil, fmt.Errorf("load index key: %w", err)
	}
	if key != nil {
		return key, nil
	}

	key, err = randx.Bytes(cryptox.KeySize)
	if err != nil {
		return nil, err
	}
	if err := cryptox.StoreKey(cfg.KeyfilePath(), key, secret); err != nil {
		return nil, fmt.Errorf("store index key: %w", err)
	}
	return key, nil
}

// Close shuts components down in reverse dependency order. The index closes
// last so the registry's final export never races the at-rest encryption.
func (a *App) Close(ctx context.Context) error {
	if err := a.Index.Close(ctx); err != nil {
		a.Logger.Error(ctx, "close index", "error", err)
		return err
	}
	return nil
}
