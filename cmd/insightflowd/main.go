// Insightflowd serves the insightflow document pipeline.
//
// It runs the HTTP API by default, or the MCP tool surface on stdio with the
// mcp subcommand. Both modes build the same pipeline from configuration.
//
// Configuration is read from ~/.config/insightflow/config.yaml (or -config),
// then overridden by environment variables. A .env file in the working
// directory is loaded first when present. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP API with defaults
//	insightflowd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9000 QDRANT_URL=http://localhost:6334 insightflowd
//
//	# Serve MCP tools on stdio
//	insightflowd mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	ifhttp "github.com/fyrsmithlabs/insightflow/internal/http"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
	ifmcp "github.com/fyrsmithlabs/insightflow/internal/mcp"
	"github.com/fyrsmithlabs/insightflow/internal/rag"
	"github.com/fyrsmithlabs/insightflow/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const (
	modeServe = "serve"
	modeMCP   = "mcp"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/insightflow/config.yaml)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment")
	flag.Usage = usage
	flag.Parse()

	mode := modeServe
	if args := flag.Args(); len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "version":
		printVersion()
		return
	case modeServe, modeMCP:
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", mode)
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, mode, *configPath, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  insightflowd [flags]           Start the HTTP API\n")
	fmt.Fprintf(os.Stderr, "  insightflowd [flags] mcp       Serve MCP tools on stdio\n")
	fmt.Fprintf(os.Stderr, "  insightflowd version           Show version information\n")
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}

func printVersion() {
	fmt.Printf("insightflowd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run builds the pipeline and serves it in mode until ctx is canceled.
func run(ctx context.Context, mode, configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromApp(cfg, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := newLogger(cfg, mode)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting insightflow",
		zap.String("mode", mode),
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("chat_model", cfg.Chat.Model),
	)
	if err := tel.Err(); err != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(err))
	}

	rt, err := rag.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn(context.Background(), "closing pipeline", zap.Error(err))
		}
	}()

	go watchConfig(ctx, configPath, logger)

	if mode == modeMCP {
		srv, err := ifmcp.NewServer(&ifmcp.Config{
			Name:    "insightflow",
			Version: version,
			Logger:  logger,
		}, rt)
		if err != nil {
			return fmt.Errorf("creating mcp server: %w", err)
		}
		return srv.Run(ctx)
	}

	srv, err := ifhttp.NewServer(rt, logger, &ifhttp.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RequestTimeout:  cfg.Server.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info(context.Background(), "server shutdown complete")
	return nil
}

// newLogger builds the process logger. In MCP mode console output moves to
// stderr.
func newLogger(cfg *config.Config, mode string) (*logging.Logger, error) {
	logCfg, err := logging.FromApp(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if mode == modeMCP {
		logCfg.Output.Stderr = true
	}

	var provider log.LoggerProvider
	if logCfg.Output.OTEL {
		provider = global.GetLoggerProvider()
	}
	return logging.NewLogger(logCfg, provider)
}

// watchConfig applies logging.level changes from the config file without a
// restart. Other settings take effect on the next start.
func watchConfig(ctx context.Context, configPath string, logger *logging.Logger) {
	err := config.Watch(ctx, configPath, func(cfg *config.Config) {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			logger.Warn(ctx, "ignoring reloaded log level", zap.Error(err))
			return
		}
		if level != logger.Level() {
			logger.SetLevel(level)
			logger.Info(ctx, "log level changed", zap.String("level", level.String()))
		}
	}, func(err error) {
		logger.Warn(ctx, "config reload failed", zap.Error(err))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug(ctx, "config watch disabled", zap.Error(err))
	}
}
