// Package app contains application services and port definitions for the market context.
package app

import (
	"context"

	"github.com/jtoledo/cycle-bot/business/market/domain"
)

// VenueSource produces a venue's full edge batch. Implementations own their
// transport (on-chain reads, REST, streaming) and normalize into domain edges.
type VenueSource interface {
	// Name returns the venue identifier used as the graph batch key.
	Name() string

	// FetchEdges returns the venue's current complete edge batch. A partial
	// answer is not allowed: implementations return everything they know or
	// an error.
	FetchEdges(ctx context.Context) ([]domain.Edge, error)

	// RequestsPerMinute caps how often the feed may call FetchEdges.
	RequestsPerMinute() int
}
