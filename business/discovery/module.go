// Package discovery implements the discovery bounded context: cycle search
// and profitability validation over the live market graph.
package discovery

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/jtoledo/cycle-bot/business/discovery/app"
	discoveryDI "github.com/jtoledo/cycle-bot/business/discovery/di"
	"github.com/jtoledo/cycle-bot/business/discovery/infra"
	"github.com/jtoledo/cycle-bot/business/discovery/infra/gascost"
	executionDI "github.com/jtoledo/cycle-bot/business/execution/di"
	marketDI "github.com/jtoledo/cycle-bot/business/market/di"
	riskDI "github.com/jtoledo/cycle-bot/business/risk/di"
	"github.com/jtoledo/cycle-bot/internal/config"
	"github.com/jtoledo/cycle-bot/internal/di"
	"github.com/jtoledo/cycle-bot/internal/logger"
	"github.com/jtoledo/cycle-bot/internal/monolith"
)

// Module implements the discovery bounded context.
type Module struct{}

// RegisterServices registers all discovery services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Reporter (public - the execution coordinator reports through it too)
	di.RegisterToken(c, discoveryDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)

		if cfg.Execution.TUIMode {
			return infra.NewTUIReporter()
		}
		return infra.NewConsoleReporter()
	})

	// Network cost estimator - private dependency
	di.RegisterToken(c, discoveryDI.CostEstimator, func(sr di.ServiceRegistry) app.NetworkCostEstimator {
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		est, err := gascost.NewEstimator(gascost.DefaultConfig(), ethClient, log)
		if err != nil {
			panic("failed to create gas cost estimator: " + err.Error())
		}
		return est
	})

	// Searcher - private dependency
	di.RegisterToken(c, discoveryDI.Searcher, func(sr di.ServiceRegistry) *app.Searcher {
		cfg := sr.Get("config").(*config.Config)

		sizes := cfg.Discovery.TradeSizesDecimal()
		probe := sizes[0]
		for _, s := range sizes[1:] {
			if s.LessThan(probe) {
				probe = s
			}
		}

		searcher, err := app.NewSearcher(app.SearchConfig{
			MaxHops:        cfg.Discovery.MaxHops,
			MaxCandidates:  cfg.Discovery.MaxCandidates,
			StalenessBound: cfg.Discovery.StalenessBound,
			ProbeSize:      probe,
		})
		if err != nil {
			panic("failed to create searcher: " + err.Error())
		}
		return searcher
	})

	// Validator - private dependency
	di.RegisterToken(c, discoveryDI.Validator, func(sr di.ServiceRegistry) *app.Validator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		feed := marketDI.GetFeedService(sr)
		governor := riskDI.GetGovernor(sr)

		return app.NewValidator(app.ValidatorConfig{
			MinProfitAbs:     cfg.Discovery.MinProfitAbsDecimal(),
			MinProfitBps:     cfg.Discovery.MinProfitBpsDecimal(),
			SlippageCoeff:    cfg.Discovery.SlippageCoeffDecimal(),
			SlippageExponent: cfg.Discovery.SlippageExponent,
			StalenessBound:   cfg.Discovery.StalenessBound,
			TradeSizes:       cfg.Discovery.TradeSizesDecimal(),
		}, discoveryDI.GetCostEstimator(sr), feed.Health(), governor, log)
	})

	// Hunter (public - exposed to other modules)
	di.RegisterToken(c, discoveryDI.Hunter, func(sr di.ServiceRegistry) *app.Hunter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		hunter, err := app.NewHunter(
			app.HunterConfig{
				BaseAsset: cfg.Discovery.BaseAsset,
				Workers:   cfg.Execution.Workers,
			},
			marketDI.GetFeedService(sr),
			discoveryDI.GetSearcher(sr),
			discoveryDI.GetValidator(sr),
			executionDI.GetCoordinator(sr),
			discoveryDI.GetReporter(sr),
			log,
		)
		if err != nil {
			panic("failed to create hunter: " + err.Error())
		}
		return hunter
	})

	return nil
}

// Startup launches the discovery loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	hunter := discoveryDI.GetHunter(mono.Services())
	if err := hunter.Start(ctx); err != nil {
		return err
	}

	mono.Logger().Info(ctx, "discovery module started")
	return nil
}
