package graph

import (
	"context"
	"time"

	"smallbiznis-affiliate/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const BackendNeo4j = "neo4j"

var Module = fx.Module("graph", fx.Provide(Provide))

// Provide connects to Neo4j when GRAPH.BACKEND is neo4j. Any other backend
// yields a nil Client.
func Provide(lc fx.Lifecycle, cfg *config.Config) (Client, error) {
	if cfg.Graph.Backend != BackendNeo4j {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := NewNeo4jClient(ctx, Options{
		URI:            cfg.Graph.URI,
		Database:       cfg.Graph.Database,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		MaxConnections: cfg.Graph.MaxConnections,
	})
	if err != nil {
		zap.L().Error("failed to connect referral graph", zap.String("uri", cfg.Graph.URI), zap.Error(err))
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close(ctx)
		},
	})
	return client, nil
}
