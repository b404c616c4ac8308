package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/db"
	"smallbiznis-affiliate/pkg/featureflags"
	"smallbiznis-affiliate/pkg/gen"
	"smallbiznis-affiliate/pkg/graph"
	"smallbiznis-affiliate/pkg/hashistack/secretmanager"
	"smallbiznis-affiliate/pkg/health"
	"smallbiznis-affiliate/pkg/httpapi"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/pkg/otelcol"
	"smallbiznis-affiliate/pkg/profiling"
	"smallbiznis-affiliate/pkg/redis"
	"smallbiznis-affiliate/pkg/sequence"
	"smallbiznis-affiliate/pkg/server"
	"smallbiznis-affiliate/pkg/task"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/commission"
	"smallbiznis-affiliate/services/conversion"
	"smallbiznis-affiliate/services/ledger"
	"smallbiznis-affiliate/services/referral"
)

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
		featureflags.Module,
		task.Client,
		otelcol.Module,
		profiling.Module,
		fx.Invoke(migrate),

		account.Module,
		referral.Module,
		commission.Module,
		ledger.Module,
		conversion.Module,

		health.Module,
		httpapi.Module,
		account.HTTP,
		ledger.HTTP,
		conversion.HTTP,
		ledger.Health,

		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(cfg *config.Config, gdb *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	return db.Migrate(gdb,
		&account.Account{},
		&conversion.Conversion{},
		&ledger.LedgerEntry{},
	)
}
