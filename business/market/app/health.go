package app

import (
	"sync"

	"github.com/shopspring/decimal"
)

// venueCounters tracks refresh outcomes for one venue.
type venueCounters struct {
	ok        int64
	errors    int64
	malformed int64
}

// VenueHealth aggregates per-venue refresh outcomes. The validator feeds the
// success rate into its confidence score.
type VenueHealth struct {
	mu     sync.RWMutex
	venues map[string]*venueCounters
}

// NewVenueHealth creates an empty tracker.
func NewVenueHealth() *VenueHealth {
	return &VenueHealth{
		venues: make(map[string]*venueCounters),
	}
}

// RecordOK counts a successful refresh.
func (h *VenueHealth) RecordOK(venue string) {
	h.mu.Lock()
	h.counters(venue).ok++
	h.mu.Unlock()
}

// RecordError counts a failed refresh.
func (h *VenueHealth) RecordError(venue string) {
	h.mu.Lock()
	h.counters(venue).errors++
	h.mu.Unlock()
}

// RecordMalformed counts a refresh dropped for malformed data.
func (h *VenueHealth) RecordMalformed(venue string) {
	h.mu.Lock()
	h.counters(venue).malformed++
	h.mu.Unlock()
}

// counters must be called with the write lock held.
func (h *VenueHealth) counters(venue string) *venueCounters {
	c, ok := h.venues[venue]
	if !ok {
		c = &venueCounters{}
		h.venues[venue] = c
	}
	return c
}

// SuccessRate returns the venue's ok/(ok+errors+malformed) ratio in [0,1].
// Unknown venues score 1 so a venue is not penalized before its first fetch.
func (h *VenueHealth) SuccessRate(venue string) decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.venues[venue]
	if !ok {
		return decimal.NewFromInt(1)
	}

	total := c.ok + c.errors + c.malformed
	if total == 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(c.ok).Div(decimal.NewFromInt(total))
}
