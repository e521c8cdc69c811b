package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/execution/domain"
	marketDomain "github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/asset"
)

// Well-known throwaway development key.
const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

const testChainID = uint64(1)

var (
	wethAddr   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	routerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)         {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)          {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)          {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)         {}
func (m *mockLogger) Debugc(ctx context.Context, c int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, c int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, c int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, c int, msg string, args ...any) {}

type fakeBackend struct {
	nonce    uint64
	gasPrice *big.Int

	sendErr error
	sent    []*types.Transaction

	receiptStatus uint64
	receiptErr    error

	// balances holds responses per token address, consumed in call order.
	// The last value repeats once exhausted.
	balances   map[common.Address][]*big.Int
	balanceErr []error // aligned with total balance call order
	callIdx    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		gasPrice:      big.NewInt(20_000_000_000),
		receiptStatus: types.ReceiptStatusSuccessful,
		balances:      make(map[common.Address][]*big.Int),
	}
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 150_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{Status: f.receiptStatus, TxHash: txHash}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	i := f.callIdx
	f.callIdx++
	if i < len(f.balanceErr) && f.balanceErr[i] != nil {
		return nil, f.balanceErr[i]
	}

	queue := f.balances[*msg.To]
	var bal *big.Int
	switch {
	case len(queue) == 0:
		bal = big.NewInt(0)
	case len(queue) == 1:
		bal = queue[0]
	default:
		bal = queue[0]
		f.balances[*msg.To] = queue[1:]
	}
	return erc20ABI.Methods["balanceOf"].Outputs.Pack(bal)
}

func testRegistry() *asset.Registry {
	r := asset.NewRegistry()
	r.Register(asset.NewAsset(asset.NewTokenAssetID(testChainID, wethAddr), "WETH", 18))
	r.Register(asset.NewAsset(asset.NewTokenAssetID(testChainID, usdcAddr), "USDC", 6))
	return r
}

func newTestSubmitter(t *testing.T, backend *fakeBackend) *Submitter {
	t.Helper()
	cfg := Config{
		ChainID: testChainID,
		Router:  routerAddr,
		Tokens: map[string]common.Address{
			"WETH": wethAddr,
			"USDC": usdcAddr,
		},
		ReceiptPoll: 10 * time.Millisecond,
	}
	s, err := NewSubmitter(cfg, testKeyHex, backend, testRegistry(), &mockLogger{})
	if err != nil {
		t.Fatalf("NewSubmitter failed: %v", err)
	}
	return s
}

func testStep() domain.PlannedStep {
	return domain.PlannedStep{
		Edge: marketDomain.Edge{
			Venue: "univ2",
			In:    "WETH",
			Out:   "USDC",
		},
		AmountIn:     decimal.NewFromInt(1),
		MinAmountOut: decimal.RequireFromString("1990"),
	}
}

func usdcUnits(s string) *big.Int {
	return decimal.RequireFromString(s).Shift(6).BigInt()
}

func TestSubmitter_StepConfirmed(t *testing.T) {
	backend := newFakeBackend()
	backend.balances[usdcAddr] = []*big.Int{
		usdcUnits("500"),     // pre-swap
		usdcUnits("2495.50"), // post-swap
	}

	s := newTestSubmitter(t, backend)

	receipt, err := s.SubmitStep(context.Background(), testStep())
	if err != nil {
		t.Fatalf("SubmitStep failed: %v", err)
	}
	if got := receipt.Realized.String(); got != "1995.5" {
		t.Errorf("realized = %s, want 1995.5", got)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.To() == nil || *tx.To() != routerAddr {
		t.Errorf("transaction target = %v, want router %s", tx.To(), routerAddr)
	}
	if tx.Value().Sign() != 0 {
		t.Errorf("transaction value = %s, want 0", tx.Value())
	}
}

func TestSubmitter_CalldataBaseUnits(t *testing.T) {
	backend := newFakeBackend()
	s := newTestSubmitter(t, backend)

	step := testStep()
	step.AmountIn = decimal.RequireFromString("0.5")
	// More precision than USDC's 6 decimals: truncated, never rejected.
	step.MinAmountOut = decimal.RequireFromString("1990.1234567")

	if _, err := s.SubmitStep(context.Background(), step); err != nil {
		t.Fatalf("SubmitStep failed: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(backend.sent))
	}

	args, err := routerABI.Methods["swapExactTokensForTokens"].Inputs.Unpack(backend.sent[0].Data()[4:])
	if err != nil {
		t.Fatalf("failed to unpack calldata: %v", err)
	}

	amountIn := args[0].(*big.Int)
	if want := decimal.RequireFromString("0.5").Shift(18).BigInt(); amountIn.Cmp(want) != 0 {
		t.Errorf("amountIn = %s, want %s", amountIn, want)
	}
	minOut := args[1].(*big.Int)
	if want := usdcUnits("1990.123456"); minOut.Cmp(want) != 0 {
		t.Errorf("amountOutMin = %s, want %s", minOut, want)
	}
}

func TestSubmitter_StepReverted(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed

	s := newTestSubmitter(t, backend)

	_, err := s.SubmitStep(context.Background(), testStep())
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperror.GetCode(err); code != apperror.CodeSubmissionFailed {
		t.Errorf("error code = %s, want %s", code, apperror.CodeSubmissionFailed)
	}
}

func TestSubmitter_ReceiptTimeoutIsChannelTimeout(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptErr = errors.New("not found")

	s := newTestSubmitter(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err := s.SubmitStep(ctx, testStep())
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperror.GetCode(err); code != apperror.CodeChannelTimeout {
		t.Errorf("error code = %s, want %s", code, apperror.CodeChannelTimeout)
	}
}

func TestSubmitter_PostBalanceFailureReportsFloor(t *testing.T) {
	backend := newFakeBackend()
	backend.balances[usdcAddr] = []*big.Int{usdcUnits("500")}
	backend.balanceErr = []error{nil, errors.New("rpc down")}

	s := newTestSubmitter(t, backend)

	receipt, err := s.SubmitStep(context.Background(), testStep())
	if err != nil {
		t.Fatalf("SubmitStep failed: %v", err)
	}
	if got := receipt.Realized.String(); got != "1990" {
		t.Errorf("realized = %s, want floor 1990", got)
	}
}

func TestSubmitter_Balance(t *testing.T) {
	backend := newFakeBackend()
	backend.balances[usdcAddr] = []*big.Int{usdcUnits("1234.56")}

	s := newTestSubmitter(t, backend)

	bal, err := s.Balance(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if got := bal.String(); got != "1234.56" {
		t.Errorf("balance = %s, want 1234.56", got)
	}
}

func TestSubmitter_UnknownToken(t *testing.T) {
	s := newTestSubmitter(t, newFakeBackend())

	_, err := s.Balance(context.Background(), "DOGE")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperror.GetCode(err); code != apperror.CodeUnknownToken {
		t.Errorf("error code = %s, want %s", code, apperror.CodeUnknownToken)
	}
}

func TestSubmitter_NoBundleSupport(t *testing.T) {
	s := newTestSubmitter(t, newFakeBackend())

	if s.SupportsBundles() {
		t.Error("wallet must not claim bundle support")
	}
	if _, err := s.SubmitBundle(context.Background(), domain.TradePlan{}); err == nil {
		t.Error("expected SubmitBundle to fail")
	}
}
