// Package market implements the market bounded context: venue liquidity feeds
// and the live market graph.
package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/jtoledo/cycle-bot/business/market/app"
	marketDI "github.com/jtoledo/cycle-bot/business/market/di"
	"github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/business/market/infra/aggrest"
	"github.com/jtoledo/cycle-bot/business/market/infra/stream"
	"github.com/jtoledo/cycle-bot/business/market/infra/univ2"
	"github.com/jtoledo/cycle-bot/internal/asset"
	"github.com/jtoledo/cycle-bot/internal/config"
	"github.com/jtoledo/cycle-bot/internal/di"
	"github.com/jtoledo/cycle-bot/internal/logger"
	"github.com/jtoledo/cycle-bot/internal/monolith"
)

// Module implements the market bounded context.
type Module struct{}

// RegisterServices registers all market services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register venue sources - private dependency
	di.RegisterToken(c, marketDI.VenueSources, func(sr di.ServiceRegistry) []app.VenueSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var sources []app.VenueSource

		if cfg.Venues.UniV2.Enabled {
			ethClient := sr.Get("ethClient").(*ethclient.Client)
			registry := sr.Get("assetRegistry").(*asset.Registry)

			src, err := univ2.NewSource(ethClient, cfg.Venues.UniV2, cfg.Ethereum.ChainID, registry, log)
			if err != nil {
				panic("failed to create univ2 source: " + err.Error())
			}
			sources = append(sources, src)
		}

		if cfg.Venues.AggRest.Enabled {
			src, err := aggrest.NewSource(cfg.Venues.AggRest, log)
			if err != nil {
				panic("failed to create aggrest source: " + err.Error())
			}
			sources = append(sources, src)
		}

		if cfg.Venues.Stream.Enabled {
			src, err := stream.NewSource(cfg.Venues.Stream, log)
			if err != nil {
				panic("failed to create stream source: " + err.Error())
			}
			sources = append(sources, src)
		}

		return sources
	})

	// Register FeedService (public - exposed to other modules)
	di.RegisterToken(c, marketDI.FeedService, func(sr di.ServiceRegistry) *app.FeedService {
		log := sr.Get("logger").(logger.LoggerInterface)
		sources := marketDI.GetVenueSources(sr)

		svc, err := app.NewFeedService(domain.NewGraph(), sources, app.NewVenueHealth(), log)
		if err != nil {
			panic("failed to create feed service: " + err.Error())
		}
		return svc
	})

	return nil
}

// Startup connects streaming venues and starts the feed workers.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	// Streaming venues need their connection up before the first snapshot.
	// A failed connect does not block startup: the feed treats a dead stream
	// as a failed venue while we retry in the background.
	for _, src := range marketDI.GetVenueSources(mono.Services()) {
		connector, ok := src.(interface{ Connect(context.Context) error })
		if !ok {
			continue
		}

		if err := connector.Connect(ctx); err != nil {
			log.Warn(ctx, "venue connect failed at startup, will retry", "venue", src.Name(), "error", err)

			go func(name string, connect func(context.Context) error) {
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(5 * time.Second):
						if err := connect(ctx); err != nil {
							log.Warn(ctx, "venue connect retry failed", "venue", name, "error", err)
							continue
						}
						log.Info(ctx, "venue connected", "venue", name)
						return
					}
				}
			}(src.Name(), connector.Connect)
		}
	}

	feed := marketDI.GetFeedService(mono.Services())
	if err := feed.Start(ctx); err != nil {
		return err
	}

	log.Info(ctx, "market module started")
	return nil
}
