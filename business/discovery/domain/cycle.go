// Package domain contains the discovery model: candidate cycles and
// validated opportunities.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	marketDomain "github.com/jtoledo/cycle-bot/business/market/domain"
)

// Step is one simulated hop of a cycle.
type Step struct {
	Edge      marketDomain.Edge
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	Impact    decimal.Decimal
}

// CandidateCycle is a closed route that starts and ends in the base asset,
// with per-step simulated amounts at a given input size. Fees are already
// inside the simulated outputs; only slippage reserve and network cost are
// accounted later by the validator.
type CandidateCycle struct {
	Base       string
	Steps      []Step
	AmountIn   decimal.Decimal
	AmountOut  decimal.Decimal
	SnapshotAt time.Time
}

// Hops returns the number of legs.
func (c CandidateCycle) Hops() int {
	return len(c.Steps)
}

// GrossProfit returns simulated output minus input.
func (c CandidateCycle) GrossProfit() decimal.Decimal {
	return c.AmountOut.Sub(c.AmountIn)
}

// Fingerprint identifies the route: the ordered sequence of directed
// venue+pair legs, hashed. Two cycles over the same legs in the same order
// always collide, which is exactly what the execution lock needs.
func (c CandidateCycle) Fingerprint() string {
	var b strings.Builder
	for i, s := range c.Steps {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.Edge.Key())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// HasDuplicateLeg reports whether any venue liquidity pool appears twice.
// Simulated amounts assume each pool's state is touched once; reusing a pool
// would price the second touch against already-consumed liquidity.
func (c CandidateCycle) HasDuplicateLeg() bool {
	seen := make(map[string]struct{}, len(c.Steps))
	for _, s := range c.Steps {
		key := s.Edge.PairKey()
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}

// OldestEdge returns the earliest leg refresh time. The whole cycle is only
// as fresh as its stalest leg.
func (c CandidateCycle) OldestEdge() time.Time {
	var oldest time.Time
	for i, s := range c.Steps {
		if i == 0 || s.Edge.UpdatedAt.Before(oldest) {
			oldest = s.Edge.UpdatedAt
		}
	}
	return oldest
}

// DepthUtilization returns the worst-case fraction of any leg's capacity the
// cycle consumes, in [0,∞). Values at or above 1 mean a leg cannot absorb
// its input.
func (c CandidateCycle) DepthUtilization() decimal.Decimal {
	var worst decimal.Decimal
	for _, s := range c.Steps {
		max := s.Edge.MaxInput()
		if !max.IsPositive() {
			continue
		}
		u := s.AmountIn.Div(max)
		if u.GreaterThan(worst) {
			worst = u
		}
	}
	return worst
}

// MaxImpact returns the largest per-leg price impact.
func (c CandidateCycle) MaxImpact() decimal.Decimal {
	var worst decimal.Decimal
	for _, s := range c.Steps {
		if s.Impact.GreaterThan(worst) {
			worst = s.Impact
		}
	}
	return worst
}

// Venues returns the distinct venues the cycle touches.
func (c CandidateCycle) Venues() []string {
	seen := make(map[string]struct{}, len(c.Steps))
	var out []string
	for _, s := range c.Steps {
		if _, ok := seen[s.Edge.Venue]; !ok {
			seen[s.Edge.Venue] = struct{}{}
			out = append(out, s.Edge.Venue)
		}
	}
	return out
}

// Route renders the token path, e.g. "WETH>USDC>DAI>WETH".
func (c CandidateCycle) Route() string {
	if len(c.Steps) == 0 {
		return c.Base
	}
	var b strings.Builder
	b.WriteString(c.Steps[0].Edge.In)
	for _, s := range c.Steps {
		b.WriteByte('>')
		b.WriteString(s.Edge.Out)
	}
	return b.String()
}

// Simulate builds a cycle over the given edges at amountIn, quoting each leg
// against the output of the previous one.
func Simulate(base string, edges []marketDomain.Edge, amountIn decimal.Decimal, snapshotAt time.Time) (CandidateCycle, error) {
	c := CandidateCycle{
		Base:       base,
		Steps:      make([]Step, 0, len(edges)),
		AmountIn:   amountIn,
		SnapshotAt: snapshotAt,
	}

	amount := amountIn
	for _, e := range edges {
		out, impact, err := e.Quote(amount)
		if err != nil {
			return CandidateCycle{}, err
		}
		c.Steps = append(c.Steps, Step{
			Edge:      e,
			AmountIn:  amount,
			AmountOut: out,
			Impact:    impact,
		})
		amount = out
	}

	c.AmountOut = amount
	return c, nil
}

// Resimulate re-prices the same route at a different input size.
func (c CandidateCycle) Resimulate(amountIn decimal.Decimal) (CandidateCycle, error) {
	edges := make([]marketDomain.Edge, len(c.Steps))
	for i, s := range c.Steps {
		edges[i] = s.Edge
	}
	return Simulate(c.Base, edges, amountIn, c.SnapshotAt)
}
