// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/jtoledo/cycle-bot/business/execution/app"
	"github.com/jtoledo/cycle-bot/business/execution/infra/ledger"
	"github.com/jtoledo/cycle-bot/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Coordinator = di.NewToken[*app.Coordinator]("execution.Coordinator")
)

// Private dependency tokens - internal to execution module
var (
	Submitter     = di.NewToken[app.Submitter]("execution:submitter")
	BalanceReader = di.NewToken[app.BalanceReader]("execution:balanceReader")
	Ledger        = di.NewToken[*ledger.Ledger]("execution:ledger")
)

// Helper functions for type-safe access
func GetCoordinator(c di.ServiceRegistry) *app.Coordinator {
	return di.GetToken(c, Coordinator)
}

func GetSubmitter(c di.ServiceRegistry) app.Submitter {
	return di.GetToken(c, Submitter)
}

func GetBalanceReader(c di.ServiceRegistry) app.BalanceReader {
	return di.GetToken(c, BalanceReader)
}

func GetLedger(c di.ServiceRegistry) *ledger.Ledger {
	return di.GetToken(c, Ledger)
}
