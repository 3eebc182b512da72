package main

import (
	"context"
	"fmt"

	"ethereumSource/internal/config"
	"ethereumSource/internal/sink"
	"ethereumSource/internal/sink/postgres"
)

func buildSink(ctx context.Context, cfg config.Config, runID string) (sink.Sink, func(), error) {
	switch cfg.Sink {
	case config.SinkRedis:
		out, err := sink.NewRedis(cfg.RedisURL, cfg.RedisChannel, cfg.RedisBuffer)
		if err != nil {
			return nil, nil, err
		}
		if err := out.Ping(ctx); err != nil {
			out.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return out, func() { _ = out.Close() }, nil
	case config.SinkPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN, runID, cfg.Filter)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store.Close, nil
	default:
		out, err := sink.NewJSONL(cfg.Out)
		if err != nil {
			return nil, nil, err
		}
		return out, func() { _ = out.Close() }, nil
	}
}
