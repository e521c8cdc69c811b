// Package wallet submits swaps leg by leg from a local signing key. It is
// the fallback path for venues without relay access: no atomicity, each leg
// is an ordinary router transaction.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/execution/app"
	"github.com/jtoledo/cycle-bot/business/execution/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/asset"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

const tracerName = "wallet"

const (
	defaultSwapGasLimit = uint64(300_000)
	defaultReceiptPoll  = 2 * time.Second
	swapDeadline        = 60 * time.Second
)

var (
	routerABI abi.ABI
	erc20ABI  abi.ABI
)

func init() {
	var err error

	routerABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "swapExactTokensForTokens",
			"type": "function",
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "amountOutMin", "type": "uint256"},
				{"name": "path", "type": "address[]"},
				{"name": "to", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			],
			"outputs": [{"name": "amounts", "type": "uint256[]"}]
		}
	]`))
	if err != nil {
		panic("router abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Backend is the node surface the submitter needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config holds wallet submitter settings.
type Config struct {
	ChainID uint64
	Router  common.Address
	// Tokens maps symbols to ERC20 contract addresses.
	Tokens map[string]common.Address

	SwapGasLimit uint64
	ReceiptPoll  time.Duration
}

// Ensure Submitter implements both ports.
var (
	_ app.Submitter     = (*Submitter)(nil)
	_ app.BalanceReader = (*Submitter)(nil)
)

// Submitter signs and sends one router swap per leg, then reads the realized
// fill off the output token balance.
type Submitter struct {
	cfg      Config
	client   Backend
	key      *ecdsa.PrivateKey
	address  common.Address
	registry *asset.Registry
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

// NewSubmitter creates the wallet adapter. privateKeyHex may carry a 0x
// prefix.
func NewSubmitter(cfg Config, privateKeyHex string, client Backend, registry *asset.Registry, log logger.LoggerInterface) (*Submitter, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	if cfg.SwapGasLimit == 0 {
		cfg.SwapGasLimit = defaultSwapGasLimit
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = defaultReceiptPoll
	}

	return &Submitter{
		cfg:      cfg,
		client:   client,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		registry: registry,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Name returns the submitter identifier.
func (s *Submitter) Name() string {
	return "wallet"
}

// Address returns the signing address.
func (s *Submitter) Address() common.Address {
	return s.address
}

// SupportsBundles reports atomic submission capability.
func (s *Submitter) SupportsBundles() bool {
	return false
}

// SubmitBundle is unsupported: the wallet has no atomic path.
func (s *Submitter) SubmitBundle(ctx context.Context, plan domain.TradePlan) (*app.BundleReceipt, error) {
	return nil, apperror.New(apperror.CodeSubmissionFailed,
		apperror.WithContext("wallet cannot submit atomic bundles"))
}

// SubmitStep sends one swap and waits for its receipt. The realized output
// is the token balance delta, so partial fills above MinAmountOut are
// reported exactly.
func (s *Submitter) SubmitStep(ctx context.Context, step domain.PlannedStep) (app.StepReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.submit_step",
		trace.WithAttributes(
			attribute.String("venue", step.Edge.Venue),
			attribute.String("pair", step.Edge.In+">"+step.Edge.Out),
		),
	)
	defer span.End()

	inAddr, err := s.tokenAddress(step.Edge.In)
	if err != nil {
		return app.StepReceipt{}, err
	}
	outAddr, err := s.tokenAddress(step.Edge.Out)
	if err != nil {
		return app.StepReceipt{}, err
	}
	inAsset := s.tokenAsset(step.Edge.In, inAddr)
	outAsset := s.tokenAsset(step.Edge.Out, outAddr)

	preOut, err := s.balanceOf(ctx, outAsset, outAddr)
	if err != nil {
		return app.StepReceipt{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to read pre-swap balance"))
	}

	amountIn, err := toBaseUnits(inAsset, step.AmountIn)
	if err != nil {
		return app.StepReceipt{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("invalid leg input amount"))
	}
	minOut, err := toBaseUnits(outAsset, step.MinAmountOut)
	if err != nil {
		return app.StepReceipt{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("invalid leg output floor"))
	}
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())

	callData, err := routerABI.Pack("swapExactTokensForTokens",
		amountIn, minOut, []common.Address{inAddr, outAddr}, s.address, deadline)
	if err != nil {
		return app.StepReceipt{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to pack swap calldata"))
	}

	signed, err := s.signSwap(ctx, callData)
	if err != nil {
		return app.StepReceipt{}, err
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return app.StepReceipt{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to send swap transaction"))
	}

	txHash := signed.Hash()
	span.SetAttributes(attribute.String("tx", txHash.Hex()))

	receipt, err := s.waitForReceipt(ctx, txHash)
	if err != nil {
		// The transaction is out; its fate is unknown.
		span.SetStatus(codes.Error, "receipt timeout")
		return app.StepReceipt{}, apperror.New(apperror.CodeChannelTimeout,
			apperror.WithCause(err),
			apperror.WithContext("swap receipt not observed in time"))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		span.SetStatus(codes.Error, "reverted")
		return app.StepReceipt{}, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithContext(fmt.Sprintf("swap reverted: %s", txHash.Hex())))
	}

	postOut, err := s.balanceOf(ctx, outAsset, outAddr)
	if err != nil {
		// Swap landed but the fill size could not be read. MinAmountOut is
		// the guaranteed floor the router enforced.
		s.logger.Warn(ctx, "post-swap balance read failed, reporting floor",
			"tx", txHash.Hex(), "error", err.Error())
		return app.StepReceipt{Realized: step.MinAmountOut}, nil
	}

	realized := decimal.Zero
	if delta, err := postOut.Sub(preOut); err == nil {
		realized = delta.ToDecimal()
	}

	span.SetStatus(codes.Ok, "confirmed")
	s.logger.Info(ctx, "swap confirmed",
		"tx", txHash.Hex(),
		"pair", step.Edge.In+">"+step.Edge.Out,
		"realized", realized.String(),
	)

	return app.StepReceipt{Realized: realized}, nil
}

// Balance reads the wallet's balance of a token by symbol.
func (s *Submitter) Balance(ctx context.Context, token string) (decimal.Decimal, error) {
	addr, err := s.tokenAddress(token)
	if err != nil {
		return decimal.Zero, err
	}
	amt, err := s.balanceOf(ctx, s.tokenAsset(token, addr), addr)
	if err != nil {
		return decimal.Zero, apperror.New(apperror.CodeBalanceUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("failed to read balance of "+token))
	}
	return amt.ToDecimal(), nil
}

func (s *Submitter) signSwap(ctx context.Context, callData []byte) (*types.Transaction, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch nonce"))
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch gas price"))
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     s.address,
		To:       &s.cfg.Router,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		gasLimit = s.cfg.SwapGasLimit
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, s.cfg.Router, big.NewInt(0), gasLimit, gasPrice, callData)

	chainID := new(big.Int).SetUint64(s.cfg.ChainID)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to sign swap transaction"))
	}
	return signed, nil
}

func (s *Submitter) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := s.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}

func (s *Submitter) rawBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	callData, err := erc20ABI.Pack("balanceOf", s.address)
	if err != nil {
		return nil, err
	}
	result, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, errors.New("empty balanceOf response")
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected balanceOf type")
	}
	return bal, nil
}

func (s *Submitter) tokenAddress(symbol string) (common.Address, error) {
	addr, ok := s.cfg.Tokens[symbol]
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeUnknownToken,
			apperror.WithContext("no contract address configured for "+symbol))
	}
	return addr, nil
}

// tokenAsset resolves token metadata from the registry, synthesizing an
// 18-decimal asset for tokens the registry does not know.
func (s *Submitter) tokenAsset(symbol string, addr common.Address) *asset.Asset {
	if a, ok := s.registry.GetBySymbolAndChain(symbol, s.cfg.ChainID); ok {
		return a
	}
	return asset.NewAsset(asset.NewTokenAssetID(s.cfg.ChainID, addr), symbol, 18)
}

// balanceOf reads the wallet's holdings of a token as a typed amount.
func (s *Submitter) balanceOf(ctx context.Context, a *asset.Asset, addr common.Address) (asset.Amount, error) {
	raw, err := s.rawBalance(ctx, addr)
	if err != nil {
		return asset.Amount{}, err
	}
	return asset.NewAmount(a, raw), nil
}

// toBaseUnits converts a plan amount into the token's smallest unit,
// truncating precision beyond the token's decimals.
func toBaseUnits(a *asset.Asset, amount decimal.Decimal) (*big.Int, error) {
	amt, err := asset.ParseDecimal(a, amount.Truncate(int32(a.Decimals())))
	if err != nil {
		return nil, err
	}
	return amt.Raw(), nil
}
