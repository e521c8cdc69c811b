// Package di contains dependency injection tokens for the discovery context.
package di

import (
	"github.com/jtoledo/cycle-bot/business/discovery/app"
	"github.com/jtoledo/cycle-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Hunter = di.NewToken[*app.Hunter]("discovery.Hunter")
	// Reporter is public: the execution coordinator publishes settled trades
	// through the same sink.
	Reporter = di.NewToken[app.Reporter]("discovery.Reporter")
)

// Private dependency tokens - internal to discovery module
var (
	Searcher      = di.NewToken[*app.Searcher]("discovery:searcher")
	Validator     = di.NewToken[*app.Validator]("discovery:validator")
	CostEstimator = di.NewToken[app.NetworkCostEstimator]("discovery:costEstimator")
)

// Helper functions for type-safe access
func GetHunter(c di.ServiceRegistry) *app.Hunter {
	return di.GetToken(c, Hunter)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}

func GetSearcher(c di.ServiceRegistry) *app.Searcher {
	return di.GetToken(c, Searcher)
}

func GetValidator(c di.ServiceRegistry) *app.Validator {
	return di.GetToken(c, Validator)
}

func GetCostEstimator(c di.ServiceRegistry) app.NetworkCostEstimator {
	return di.GetToken(c, CostEstimator)
}
