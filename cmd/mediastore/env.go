package main

import (
	"context"
	"errors"

	"github.com/sonata-project/mediastore/cdn"
	"github.com/sonata-project/mediastore/cmd/flags"
	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/media"
	"github.com/urfave/cli/v2"
)

// commandEnv holds what the one-shot commands operate on.
type commandEnv struct {
	store   interfaces.StorageBackend
	manager *media.Manager
}

// withStore opens the configured store, runs fn and closes the store again.
func withStore(cCtx *cli.Context, fn func(ctx context.Context, env *commandEnv) error) (err error) {
	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx, cfg)

	generator, err := cfg.PathGenerator()
	if err != nil {
		return err
	}

	// One-shot commands do not serve metrics.
	store, closeStore, err := flags.OpenStore(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeStore())
	}()

	env := &commandEnv{
		store:   store,
		manager: media.NewManager(generator, store, cdn.New(cfg.Media.CDNPath), logger),
	}
	return fn(cCtx.Context, env)
}
