package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sonata-project/mediastore/cdn"
	"github.com/sonata-project/mediastore/cmd/flags"
	"github.com/sonata-project/mediastore/common"
	"github.com/sonata-project/mediastore/httpserver"
	"github.com/sonata-project/mediastore/media"
	"github.com/sonata-project/mediastore/metrics"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "mediastore",
		Usage:   "Store media files under generated paths on replicated backends",
		Version: common.Version,
		Flags:   flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the media HTTP API",
				Flags:  flags.ServerFlags,
				Action: serve,
			},
			{
				Name:      "path",
				Usage:     "Print the storage directory generated for an asset",
				ArgsUsage: "<context> <id>",
				Action:    printPath,
			},
			{
				Name:      "put",
				Usage:     "Store a local file as a media asset",
				ArgsUsage: "<context> <id> <file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reference",
						Usage: "file name to store under; defaults to the base name of <file>",
					},
				},
				Action: put,
			},
			{
				Name:      "get",
				Usage:     "Write the content stored under a key to stdout",
				ArgsUsage: "<key>",
				Action:    get,
			},
			{
				Name:      "rm",
				Usage:     "Delete the content stored under a key",
				ArgsUsage: "<key>",
				Action:    remove,
			},
			{
				Name:   "ls",
				Usage:  "List every stored key",
				Action: list,
			},
		},
	}
}

func serve(cCtx *cli.Context) error {
	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		return err
	}
	logger := flags.SetupLogger(cCtx, cfg)

	metricsSrv, err := metrics.New(common.PackageName, cfg.Server.MetricsAddr)
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}

	store, closeStore, err := flags.OpenStore(cfg, logger, metricsSrv.Storage())
	if err != nil {
		logger.Error("Failed to open storage", "err", err)
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("Failed to close storage", "err", err)
		}
	}()

	generator, err := cfg.PathGenerator()
	if err != nil {
		return err
	}

	manager := media.NewManager(generator, store, cdn.New(cfg.Media.CDNPath), logger)
	handler := httpserver.NewHandler(manager, store, logger)

	server, err := httpserver.New(flags.ConfigureServer(cfg, logger), metricsSrv, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server",
		"storage", store.LocationURI(),
		"generator", cfg.Media.Generator)
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func printPath(cCtx *cli.Context) error {
	if cCtx.NArg() != 2 {
		return cli.Exit("usage: mediastore path <context> <id>", 2)
	}

	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		return err
	}
	generator, err := cfg.PathGenerator()
	if err != nil {
		return err
	}

	fmt.Fprintln(cCtx.App.Writer, generator.GeneratePath(cCtx.Args().Get(0), cCtx.Args().Get(1)))
	return nil
}

func put(cCtx *cli.Context) error {
	if cCtx.NArg() != 3 {
		return cli.Exit("usage: mediastore put <context> <id> <file>", 2)
	}

	return withStore(cCtx, func(ctx context.Context, env *commandEnv) error {
		file := cCtx.Args().Get(2)
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		reference := cCtx.String("reference")
		if reference == "" {
			reference = filepath.Base(file)
		}

		asset := &media.Asset{
			Context:   cCtx.Args().Get(0),
			ID:        cCtx.Args().Get(1),
			Reference: reference,
		}
		if _, err := env.manager.Save(ctx, asset, content); err != nil {
			return err
		}

		key, err := env.manager.ReferenceKey(asset)
		if err != nil {
			return err
		}
		fmt.Fprintln(cCtx.App.Writer, key)
		return nil
	})
}

func get(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.Exit("usage: mediastore get <key>", 2)
	}

	return withStore(cCtx, func(ctx context.Context, env *commandEnv) error {
		content, err := env.store.Read(ctx, cCtx.Args().First())
		if err != nil {
			return err
		}
		_, err = cCtx.App.Writer.Write(content)
		return err
	})
}

func remove(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return cli.Exit("usage: mediastore rm <key>", 2)
	}

	return withStore(cCtx, func(ctx context.Context, env *commandEnv) error {
		return env.store.Delete(ctx, cCtx.Args().First())
	})
}

func list(cCtx *cli.Context) error {
	return withStore(cCtx, func(ctx context.Context, env *commandEnv) error {
		keys, err := env.store.Keys(ctx)
		if err != nil {
			return err
		}
		return printLines(cCtx.App.Writer, keys)
	})
}

func printLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
