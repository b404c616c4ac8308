package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/fx"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/db"
	"smallbiznis-affiliate/pkg/gen"
	"smallbiznis-affiliate/pkg/graph"
	"smallbiznis-affiliate/pkg/hashistack/secretmanager"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/pkg/redis"
	"smallbiznis-affiliate/pkg/sequence"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/commission"
	"smallbiznis-affiliate/services/conversion"
	"smallbiznis-affiliate/services/ledger"
	"smallbiznis-affiliate/services/referral"
)

const startTimeout = 30 * time.Second

// services is everything a command may need; fx fills the fields.
type services struct {
	fx.In

	Config      *config.Config
	Accounts    *account.Service
	Conversions *conversion.Service
	Engine      *conversion.Engine
	Ledger      *ledger.Service
}

// withServices boots the core modules without any server, runs fn and
// shuts everything down again.
func withServices(ctx context.Context, fn func(context.Context, services) error) error {
	var svc services
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		graph.Module,
		account.Module,
		referral.Module,
		commission.Module,
		ledger.Module,
		conversion.Module,
		fx.NopLogger,
		fx.Invoke(func(s services) { svc = s }),
	)

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
