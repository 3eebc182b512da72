package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ethereumSource/internal/config"
	"ethereumSource/internal/scheduler"
	"ethereumSource/internal/source"
)

func main() {
	root := &cobra.Command{
		Use:          "ethsource",
		Short:        "Ethereum event feed connector",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Stream blocks or transactions from a node into a sink",
		Long: "Stream blocks or transactions from a node into a sink.\n\n" +
			"SIGUSR1 pauses delivery, SIGUSR2 resumes it, SIGINT and SIGTERM disconnect.",
		RunE: runSource,
	}

	runCmd.Flags().String("uri", "", "node websocket or IPC endpoint")
	runCmd.Flags().String("filter", source.FilterNewBlock, "newBlock, newTransaction, pendingTransaction or replayTransaction")
	runCmd.Flags().String("from-block", "earliest", "first replayed block: number, 0x-hex, earliest or latest")
	runCmd.Flags().String("to-block", "latest", "last replayed block: number, 0x-hex, earliest or latest")
	runCmd.Flags().Int64("polling-interval", source.DefaultPollingInterval.Milliseconds(), "node liveness check interval in milliseconds")
	runCmd.Flags().String("sink", config.SinkJSONL, "record sink (jsonl, redis, postgres)")
	runCmd.Flags().String("out", "./data/events.jsonl", "output JSONL path")
	runCmd.Flags().String("redis-url", "", "Redis URL for the redis sink")
	runCmd.Flags().String("redis-channel", "ethereum:events", "Redis channel records are published on")
	runCmd.Flags().Int64("redis-buffer", 1000, "number of recent records kept in Redis")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the postgres sink")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSource(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	connCfg, err := cfg.Connector()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, closeSink, err := buildSink(ctx, cfg, runID)
	if err != nil {
		return err
	}
	defer closeSink()

	sched := scheduler.New(logger)
	defer sched.Shutdown()

	conn, err := source.NewConnector(connCfg, out, sched, logger)
	if err != nil {
		return err
	}

	logger.Info("source start",
		zap.String("uri", connCfg.URI),
		zap.String("filter", conn.Filter().Name()),
		zap.String("from_block", connCfg.FromBlock),
		zap.String("to_block", connCfg.ToBlock),
		zap.Duration("polling_interval", connCfg.PollingInterval),
		zap.String("sink", cfg.Sink),
	)

	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Disconnect()

	flow := make(chan os.Signal, 1)
	signal.Notify(flow, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(flow)

	done := make(chan error, 1)
	go func() {
		done <- conn.Wait(ctx)
	}()

	for {
		select {
		case sig := <-flow:
			switch sig {
			case syscall.SIGUSR1:
				err = conn.Pause()
			case syscall.SIGUSR2:
				err = conn.Resume()
			}
			if err != nil {
				logger.Warn("flow control failed", zap.String("signal", sig.String()), zap.Error(err))
			}
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("feed ended: %w", err)
			}
			logger.Info("source stopped", zap.Uint64("delivered", conn.Delivered()))
			return nil
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
