// Package execution implements the execution bounded context: trade planning,
// submission, and settlement accounting.
package execution

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	discoveryDI "github.com/jtoledo/cycle-bot/business/discovery/di"
	"github.com/jtoledo/cycle-bot/business/execution/app"
	executionDI "github.com/jtoledo/cycle-bot/business/execution/di"
	"github.com/jtoledo/cycle-bot/business/execution/infra/ledger"
	"github.com/jtoledo/cycle-bot/business/execution/infra/relay"
	"github.com/jtoledo/cycle-bot/business/execution/infra/wallet"
	riskDI "github.com/jtoledo/cycle-bot/business/risk/di"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/asset"
	"github.com/jtoledo/cycle-bot/internal/config"
	"github.com/jtoledo/cycle-bot/internal/di"
	"github.com/jtoledo/cycle-bot/internal/logger"
	"github.com/jtoledo/cycle-bot/internal/monolith"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Ledger - private dependency
	di.RegisterToken(c, executionDI.Ledger, func(sr di.ServiceRegistry) *ledger.Ledger {
		cfg := sr.Get("config").(*config.Config)

		l, err := ledger.Open(cfg.Execution.LedgerPath)
		if err != nil {
			panic("failed to open execution ledger: " + err.Error())
		}
		return l
	})

	// Submitter - private dependency. Relay when bundles are enabled,
	// wallet otherwise.
	di.RegisterToken(c, executionDI.Submitter, func(sr di.ServiceRegistry) app.Submitter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Execution.UseBundles {
			sub, err := relay.NewSubmitter(relay.Config{
				URL:            cfg.Execution.RelayURL,
				RequestTimeout: cfg.Execution.SubmitTimeout,
			}, log)
			if err != nil {
				panic("failed to create relay submitter: " + err.Error())
			}
			return sub
		}
		return newWalletSubmitter(sr)
	})

	// BalanceReader - private dependency. Reads go through the wallet when a
	// signing key is configured; without one, reconciliation treats balances
	// as unreadable and settles conservatively.
	di.RegisterToken(c, executionDI.BalanceReader, func(sr di.ServiceRegistry) app.BalanceReader {
		cfg := sr.Get("config").(*config.Config)

		if sub, ok := executionDI.GetSubmitter(sr).(*wallet.Submitter); ok {
			return sub
		}
		if cfg.Execution.PrivateKey == "" {
			return unreadableBalances{}
		}
		return newWalletSubmitter(sr)
	})

	// Coordinator (public - exposed to other modules)
	di.RegisterToken(c, executionDI.Coordinator, func(sr di.ServiceRegistry) *app.Coordinator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		coordinator, err := app.NewCoordinator(
			app.CoordinatorConfig{
				UseBundles:     cfg.Execution.UseBundles,
				SubmitTimeout:  cfg.Execution.SubmitTimeout,
				ConfirmTimeout: cfg.Execution.ConfirmTimeout,
				TipCoefficient: cfg.Execution.TipCoefficientDecimal(),
				MinTip:         cfg.Execution.MinTipDecimal(),
				MaxTipFraction: cfg.Execution.MaxTipFractionDecimal(),
			},
			executionDI.GetSubmitter(sr),
			executionDI.GetBalanceReader(sr),
			executionDI.GetLedger(sr),
			riskDI.GetGovernor(sr),
			discoveryDI.GetReporter(sr),
			log,
		)
		if err != nil {
			panic("failed to create execution coordinator: " + err.Error())
		}
		return coordinator
	})

	return nil
}

// Startup forces coordinator construction so wiring failures surface at boot.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	executionDI.GetCoordinator(mono.Services())
	mono.Logger().Info(ctx, "execution module started")
	return nil
}

// unreadableBalances is the degraded reader used when no signing key is
// configured. Every read fails, so timed-out submissions settle as rejected.
type unreadableBalances struct{}

func (unreadableBalances) Balance(ctx context.Context, token string) (decimal.Decimal, error) {
	return decimal.Zero, apperror.New(apperror.CodeBalanceUnavailable,
		apperror.WithContext("no signing key configured for balance reads"))
}

// newWalletSubmitter builds the wallet adapter. On the sequential path the
// balance reader resolves to the same instance as the submitter.
func newWalletSubmitter(sr di.ServiceRegistry) *wallet.Submitter {
	cfg := sr.Get("config").(*config.Config)
	log := sr.Get("logger").(logger.LoggerInterface)
	ethClient := sr.Get("ethClient").(*ethclient.Client)
	registry := sr.Get("assetRegistry").(*asset.Registry)

	sub, err := wallet.NewSubmitter(wallet.Config{
		ChainID: cfg.Ethereum.ChainID,
		Router:  cfg.Execution.RouterAddressHex(),
		Tokens:  cfg.Execution.TokenAddressesHex(),
	}, cfg.Execution.PrivateKey, ethClient, registry, log)
	if err != nil {
		panic("failed to create wallet submitter: " + err.Error())
	}
	return sub
}
