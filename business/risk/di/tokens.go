// Package di contains dependency injection tokens for the risk context.
package di

import (
	"github.com/jtoledo/cycle-bot/business/risk/app"
	"github.com/jtoledo/cycle-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Governor = di.NewToken[*app.Governor]("risk.Governor")
)

// Helper functions for type-safe access
func GetGovernor(c di.ServiceRegistry) *app.Governor {
	return di.GetToken(c, Governor)
}
