package account

import (
	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("account.service",
	fx.Provide(
		provideResolver,
		NewService,
	),
)

// HTTP registers the account routes on the shared gin engine.
var HTTP = fx.Module("account.http",
	fx.Provide(NewHandler),
	fx.Invoke(func(r *gin.Engine, h *Handler) { h.Register(r) }),
)

type resolverParams struct {
	fx.In
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
	Config *config.Config
}

func provideResolver(p resolverParams) *Resolver {
	return NewResolver(repository.ProvideStore[Account](p.DB), p.Redis, p.Config.Redis.CacheTTL)
}
