package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/db"
	"smallbiznis-affiliate/pkg/gen"
	"smallbiznis-affiliate/pkg/graph"
	"smallbiznis-affiliate/pkg/hashistack/secretmanager"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/pkg/redis"
	"smallbiznis-affiliate/pkg/sequence"
	"smallbiznis-affiliate/pkg/task"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/commission"
	"smallbiznis-affiliate/services/conversion"
	"smallbiznis-affiliate/services/ledger"
	"smallbiznis-affiliate/services/referral"
)

// The worker runs deferred distributions queued by the API.
func main() {
	opts := []fx.Option{
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

		task.Server,
		conversion.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
