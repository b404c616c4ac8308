package referral

import (
	"smallbiznis-affiliate/pkg/graph"
	"smallbiznis-affiliate/pkg/repository"
	"smallbiznis-affiliate/services/account"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("referral.graph",
	fx.Provide(
		provideSource,
		provideMirror,
		NewWalker,
		func(w *Walker) account.UplineWalker { return w },
	),
)

type sourceParams struct {
	fx.In
	DB    *gorm.DB
	Graph graph.Client `optional:"true"`
}

func provideSource(p sourceParams) Source {
	if p.Graph != nil {
		zap.L().Info("referral graph backed by neo4j")
		return NewNeo4jSource(p.Graph)
	}
	return NewStoreSource(repository.ProvideStore[account.Account](p.DB))
}

// provideMirror keeps neo4j in step with account writes. Without a graph
// client there is nothing to mirror.
func provideMirror(p sourceParams) account.GraphMirror {
	if p.Graph == nil {
		return nil
	}
	return NewNeo4jSource(p.Graph)
}
