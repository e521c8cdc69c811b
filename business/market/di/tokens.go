// Package di contains dependency injection tokens for the market context.
package di

import (
	"github.com/jtoledo/cycle-bot/business/market/app"
	"github.com/jtoledo/cycle-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	FeedService = di.NewToken[*app.FeedService]("market.FeedService")
)

// Private dependency tokens - internal to market module
var (
	VenueSources = di.NewToken[[]app.VenueSource]("market:venueSources")
)

// Helper functions for type-safe access
func GetFeedService(c di.ServiceRegistry) *app.FeedService {
	return di.GetToken(c, FeedService)
}

func GetVenueSources(c di.ServiceRegistry) []app.VenueSource {
	return di.GetToken(c, VenueSources)
}
