package flags

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sonata-project/mediastore/common"
	"github.com/sonata-project/mediastore/config"
	"github.com/sonata-project/mediastore/httpserver"
	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/metrics"
	"github.com/sonata-project/mediastore/storage"
	"github.com/urfave/cli/v2"
)

// SetupLogger builds the process logger from the log flags, falling back to
// the config file for anything not set on the command line.
func SetupLogger(cCtx *cli.Context, cfg *config.Config) (log *slog.Logger) {
	logJSON := cfg.Log.JSON
	if cCtx.IsSet(LogJsonFlag.Name) {
		logJSON = cCtx.Bool(LogJsonFlag.Name)
	}
	logDebug := cfg.Log.Debug
	if cCtx.IsSet(LogDebugFlag.Name) {
		logDebug = cCtx.Bool(LogDebugFlag.Name)
	}
	logService := cfg.Log.Service
	if cCtx.IsSet(LogServiceFlag.Name) {
		logService = cCtx.String(LogServiceFlag.Name)
	}

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
		// Commands print their results on stdout.
		Output: os.Stderr,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// LoadConfig reads --config when given and applies flag overrides.
func LoadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := cCtx.String(ConfigFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cCtx.IsSet(ListenAddrFlag.Name) {
		cfg.Server.ListenAddr = cCtx.String(ListenAddrFlag.Name)
	}
	if cCtx.IsSet(MetricsAddrFlag.Name) {
		cfg.Server.MetricsAddr = cCtx.String(MetricsAddrFlag.Name)
	}
	if cCtx.IsSet(PprofFlag.Name) {
		cfg.Server.EnablePprof = cCtx.Bool(PprofFlag.Name)
	}
	if cCtx.IsSet(DrainSecondsFlag.Name) {
		cfg.Server.DrainSeconds = cCtx.Int64(DrainSecondsFlag.Name)
	}
	if cCtx.IsSet(PrimaryFlag.Name) {
		cfg.Storage.Primary = cCtx.String(PrimaryFlag.Name)
	}
	if cCtx.IsSet(SecondaryFlag.Name) {
		cfg.Storage.Secondary = cCtx.String(SecondaryFlag.Name)
	}
	if cCtx.IsSet(GeneratorFlag.Name) {
		cfg.Media.Generator = cCtx.String(GeneratorFlag.Name)
	}
	if cCtx.IsSet(CDNPathFlag.Name) {
		cfg.Media.CDNPath = cCtx.String(CDNPathFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func ConfigureServer(cfg *config.Config, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cfg.Server.ListenAddr,
		MetricsAddr:              cfg.Server.MetricsAddr,
		Log:                      logger,
		EnablePprof:              cfg.Server.EnablePprof,
		DrainDuration:            time.Duration(cfg.Server.DrainSeconds) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// OpenStore creates the configured store: the primary alone, or a replicated
// pair when a secondary is configured. The returned function releases backend
// resources.
func OpenStore(cfg *config.Config, logger *slog.Logger, storageMetrics *metrics.StorageMetrics) (interfaces.StorageBackend, func() error, error) {
	factory := storage.NewStorageBackendFactory(logger).WithMetrics(storageMetrics)

	primary, err := interfaces.NewStorageBackendLocation(cfg.Storage.Primary)
	if err != nil {
		return nil, nil, err
	}

	var store interfaces.StorageBackend
	if cfg.Storage.Secondary == "" {
		store, err = factory.StorageBackendFor(primary)
	} else {
		var secondary interfaces.StorageBackendLocation
		secondary, err = interfaces.NewStorageBackendLocation(cfg.Storage.Secondary)
		if err != nil {
			return nil, nil, err
		}
		store, err = factory.CreateReplicatedBackend(primary, secondary)
	}
	if err != nil {
		return nil, nil, err
	}

	closeStore := func() error { return nil }
	if closer, ok := store.(io.Closer); ok {
		closeStore = closer.Close
	}
	return store, closeStore, nil
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to a YAML configuration file",
	EnvVars: []string{"MEDIASTORE_CONFIG"},
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var PrimaryFlag = &cli.StringFlag{
	Name:  "primary",
	Usage: "primary storage location URI (file://, memory://, s3://, ipfs://, vault://, pebble://)",
}

var SecondaryFlag = &cli.StringFlag{
	Name:  "secondary",
	Usage: "secondary storage location URI; enables replicated writes",
}

var GeneratorFlag = &cli.StringFlag{
	Name:  "generator",
	Value: "numeric",
	Usage: "path generator: numeric, hierarchical or bucket",
}

var CDNPathFlag = &cli.StringFlag{
	Name:  "cdn-path",
	Usage: "base URL for public file URLs",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

// CommonFlags are accepted by every command.
var CommonFlags = []cli.Flag{
	ConfigFlag,
	PrimaryFlag,
	SecondaryFlag,
	GeneratorFlag,
	CDNPathFlag,
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

// ServerFlags are accepted by the serve command.
var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
