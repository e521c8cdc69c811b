// Package risk implements the risk bounded context: route locks, loss
// limits, and the trading halt switch.
package risk

import (
	"context"

	"github.com/jtoledo/cycle-bot/business/risk/app"
	riskDI "github.com/jtoledo/cycle-bot/business/risk/di"
	"github.com/jtoledo/cycle-bot/internal/config"
	"github.com/jtoledo/cycle-bot/internal/di"
	"github.com/jtoledo/cycle-bot/internal/logger"
	"github.com/jtoledo/cycle-bot/internal/monolith"
)

// Module implements the risk bounded context.
type Module struct{}

// RegisterServices registers all risk services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, riskDI.Governor, func(sr di.ServiceRegistry) *app.Governor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		gov, err := app.NewGovernor(app.Config{
			MaxPositionSize:   cfg.Risk.MaxPositionSizeDecimal(),
			DailyLossLimit:    cfg.Risk.DailyLossLimitDecimal(),
			ConsecutiveLosses: cfg.Risk.ConsecutiveLosses,
			Cooldown:          cfg.Risk.Cooldown,
		}, log)
		if err != nil {
			panic("failed to create risk governor: " + err.Error())
		}
		return gov
	})

	return nil
}

// Startup has nothing to do: the governor is passive until consulted.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "risk module started")
	return nil
}
