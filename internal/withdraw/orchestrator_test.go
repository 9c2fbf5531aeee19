package withdraw

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/amount"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/blobstore"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/chainclient"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/exit"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/proofservice"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/queue"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
)

var (
	childToken = common.HexToAddress("0x0000000000000000000000000000000000001010")
	rootToken  = common.HexToAddress("0x44499312f493F62f2DFd3C6435Ca3603EbFCeeBa")
	predicate  = common.HexToAddress("0x4e3bE3A2A6a8C1D6d2F5E5A3b9E2C7d7A0aB1c01")
	manager    = common.HexToAddress("0x2A88696e0fFA76bAA1338F2C74497cC013495922")
	owner      = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	burnHash   = common.HexToHash("0xb0b0000000000000000000000000000000000000000000000000000000000001")
)

type fakeChain struct {
	chain   txlog.Chain
	balance *big.Int
	errs    map[string]error
	calls   []chainclient.Call
}

func (f *fakeChain) Address() common.Address { return owner }

func (f *fakeChain) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) Transact(_ context.Context, call chainclient.Call) (txlog.TransactionRecord, error) {
	f.calls = append(f.calls, call)
	h := common.BytesToHash([]byte(fmt.Sprintf("%s-%d", call.Method, len(f.calls))))
	if call.Method == "withdraw" {
		h = burnHash
	}
	rec := txlog.TransactionRecord{Hash: h, Chain: f.chain, Method: call.Method, To: call.To, Status: txlog.StatusConfirmed, BlockNumber: 10}
	if err := f.errs[call.Method]; err != nil {
		rec.Status = txlog.StatusFailed
		return rec, err
	}
	return rec, nil
}

func (f *fakeChain) methods() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

// pendingFetcher reports "not checkpointed" for the first pending calls.
type pendingFetcher struct {
	pending int
	calls   int
	payload []byte
}

func (f *pendingFetcher) FetchExitPayload(context.Context, common.Hash) (proofservice.Proof, error) {
	f.calls++
	if f.calls <= f.pending {
		return proofservice.Proof{}, proofservice.ErrNotCheckpointed
	}
	return proofservice.NewProof(f.payload), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []queue.Event
}

func (e *recordingEmitter) Emit(_ context.Context, ev queue.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

type harness struct {
	child   *fakeChain
	root    *fakeChain
	fetcher *pendingFetcher
	sleeps  int
	events  *recordingEmitter
	store   blobstore.Store
	orch    *Orchestrator
}

func newHarness(t *testing.T, autoExit bool, pending int) *harness {
	t.Helper()

	h := &harness{
		child:   &fakeChain{chain: txlog.ChainChild, balance: mustUnits(t, "100")},
		root:    &fakeChain{chain: txlog.ChainRoot},
		fetcher: &pendingFetcher{pending: pending, payload: []byte{0xf9, 0x02, 0x10}},
		events:  &recordingEmitter{},
	}
	poller, err := proofservice.NewPoller(h.fetcher, proofservice.PollerConfig{
		Interval:    30 * time.Second,
		MaxAttempts: 360,
		Sleep: func(context.Context, time.Duration) error {
			h.sleeps++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	exits, err := exit.NewProcessor(h.root, exit.Config{ERC20Predicate: predicate, WithdrawManager: manager})
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	h.store, err = blobstore.New(blobstore.Config{Driver: blobstore.DriverMemory})
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	h.orch, err = New(h.child, poller, exits, Config{
		ChildToken: childToken,
		RootToken:  rootToken,
		AutoExit:   autoExit,
		Network:    "amoy",
		Artifacts:  h.store,
		Events:     h.events,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func mustUnits(t *testing.T, s string) *big.Int {
	t.Helper()
	a, err := amount.Parse(s, amount.DefaultDecimals)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return a.Units()
}

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s, amount.DefaultDecimals)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return a
}

func TestWithdraw_AutoExitRunsToDone(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 3)
	res, err := h.orch.Withdraw(context.Background(), mustAmount(t, "20"))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("state: got %s want done", res.State)
	}
	if res.BurnTx != burnHash || res.Proof.Hex() != "0xf90210" {
		t.Fatalf("result: burn=%s proof=%s", res.BurnTx, res.Proof.Hex())
	}

	if got := h.child.methods(); len(got) != 1 || got[0] != "withdraw" {
		t.Fatalf("child calls: %v", got)
	}
	burn := h.child.calls[0]
	if burn.To != childToken || burn.Value.Cmp(mustUnits(t, "20")) != 0 {
		t.Fatalf("burn call: to=%s value=%s", burn.To, burn.Value)
	}
	// withdraw(uint256): selector followed by one word carrying the same units as Value.
	if len(burn.Data) != 36 || new(big.Int).SetBytes(burn.Data[4:36]).Cmp(burn.Value) != 0 {
		t.Fatalf("burn calldata does not encode value %s: %x", burn.Value, burn.Data)
	}
	if got := h.root.methods(); len(got) != 2 || got[0] != "startExitWithBurntTokens" || got[1] != "processExits" {
		t.Fatalf("root calls: %v", got)
	}
	if h.fetcher.calls != 4 || h.sleeps != 3 {
		t.Fatalf("polls=%d sleeps=%d", h.fetcher.calls, h.sleeps)
	}

	stored, ok, err := blobstore.LoadProof(context.Background(), h.store, burnHash)
	if err != nil || !ok || len(stored) != 3 {
		t.Fatalf("stored proof: ok=%v err=%v %x", ok, err, stored)
	}
	kinds := h.events.kinds()
	want := []string{"withdraw.burned", "withdraw.checkpointed", "withdraw.exit_processed"}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("events: got %v want %v", kinds, want)
	}
}

func TestWithdraw_ManualHandoffStopsAfterBurn(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, 0)
	res, err := h.orch.Withdraw(context.Background(), mustAmount(t, "5"))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if res.State != StateManualHandoff || res.BurnTx != burnHash {
		t.Fatalf("result: %+v", res)
	}
	if h.fetcher.calls != 0 || len(h.root.calls) != 0 {
		t.Fatalf("expected no polling or exit, polls=%d root=%v", h.fetcher.calls, h.root.methods())
	}
}

func TestWithdraw_InsufficientBalanceSubmitsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	_, err := h.orch.Withdraw(context.Background(), mustAmount(t, "100.000000000000000001"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	var rerr *ResumeError
	if !errors.As(err, &rerr) || rerr.State != StateIdle || rerr.ResumeCommand() != "" {
		t.Fatalf("resume error: %+v", rerr)
	}
	if len(h.child.calls) != 0 {
		t.Fatalf("expected no transactions, got %v", h.child.methods())
	}
}

func TestWithdraw_ExactBalanceIsAllowed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, 0)
	if _, err := h.orch.Withdraw(context.Background(), mustAmount(t, "100")); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
}

func TestWithdraw_BurnRevertHasNoResumeCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	h.child.errs = map[string]error{"withdraw": chainclient.ErrTxFailed}
	_, err := h.orch.Withdraw(context.Background(), mustAmount(t, "1"))
	var rerr *ResumeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResumeError, got %v", err)
	}
	if rerr.State != StateBurning || rerr.BurnTx != burnHash || rerr.ResumeCommand() != "" {
		t.Fatalf("resume error: %+v cmd=%q", rerr, rerr.ResumeCommand())
	}
	if h.events.kinds()[0] != "withdraw.failed" {
		t.Fatalf("events: %v", h.events.kinds())
	}
}

func TestExit_DuplicateExitStillSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	h.root.errs = map[string]error{
		"startExitWithBurntTokens": fmt.Errorf("%w: EXIT_ALREADY_EXISTS", chainclient.ErrExitAlreadyStarted),
	}
	res, err := h.orch.Exit(context.Background(), burnHash)
	if err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if res.State != StateDone || res.Exit == nil || res.Exit.State != exit.StateProcessed {
		t.Fatalf("result: %+v", res)
	}
	if len(h.child.calls) != 0 {
		t.Fatalf("Exit must not burn again")
	}
	if got := h.root.methods(); len(got) != 2 || got[1] != "processExits" {
		t.Fatalf("root calls: %v", got)
	}
}

func TestExit_UsesStoredProofWithoutPolling(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 1_000)
	if err := blobstore.SaveProof(context.Background(), h.store, burnHash, "amoy", []byte{0x01}); err != nil {
		t.Fatalf("SaveProof: %v", err)
	}
	res, err := h.orch.Exit(context.Background(), burnHash)
	if err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if h.fetcher.calls != 0 || res.Proof.Hex() != "0x01" {
		t.Fatalf("polls=%d proof=%s", h.fetcher.calls, res.Proof.Hex())
	}
}

func TestExit_CheckpointTimeoutCarriesBurnHash(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 360)
	_, err := h.orch.Exit(context.Background(), burnHash)
	if !errors.Is(err, proofservice.ErrCheckpointTimeout) {
		t.Fatalf("expected ErrCheckpointTimeout, got %v", err)
	}
	var rerr *ResumeError
	if !errors.As(err, &rerr) || rerr.BurnTx != burnHash || rerr.State != StatePollingCheckpoint {
		t.Fatalf("resume error: %+v", rerr)
	}
	if rerr.ResumeCommand() != "exit "+burnHash.Hex() {
		t.Fatalf("resume command: %q", rerr.ResumeCommand())
	}
	if h.fetcher.calls != 360 || h.sleeps != 359 {
		t.Fatalf("polls=%d sleeps=%d", h.fetcher.calls, h.sleeps)
	}
	if len(h.root.calls) != 0 {
		t.Fatalf("expected no exit calls")
	}
}

func TestCheck_RetryAfterTimeoutReturnsSameProof(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 360)
	h.orch.cfg.Artifacts = nil
	ctx := context.Background()

	_, err := h.orch.Check(ctx, burnHash)
	if !errors.Is(err, proofservice.ErrCheckpointTimeout) {
		t.Fatalf("expected ErrCheckpointTimeout, got %v", err)
	}
	var rerr *ResumeError
	if !errors.As(err, &rerr) || rerr.BurnTx != burnHash || rerr.Proof != "" {
		t.Fatalf("resume error: %+v", rerr)
	}

	res, err := h.orch.Check(ctx, burnHash)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if res.State != StateCheckpointed || res.Proof.Hex() != "0xf90210" {
		t.Fatalf("second Check: state=%s proof=%s", res.State, res.Proof.Hex())
	}

	exitRes, err := h.orch.Exit(ctx, burnHash)
	if err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if exitRes.State != StateDone || exitRes.Proof.Hex() != res.Proof.Hex() {
		t.Fatalf("Exit: state=%s proof=%s", exitRes.State, exitRes.Proof.Hex())
	}
	if h.fetcher.calls != 362 {
		t.Fatalf("polls: got %d want 362", h.fetcher.calls)
	}
	if got := h.root.methods(); len(got) != 2 || got[0] != "startExitWithBurntTokens" {
		t.Fatalf("root calls: %v", got)
	}
	if len(h.child.calls) != 0 {
		t.Fatalf("retries must not burn again")
	}
}

func TestExitWithProof_SkipsProofService(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 1_000)
	res, err := h.orch.ExitWithProof(context.Background(), burnHash, proofservice.NewProof([]byte{0xaa, 0xbb}))
	if err != nil {
		t.Fatalf("ExitWithProof: %v", err)
	}
	if res.State != StateDone || res.Proof.Hex() != "0xaabb" {
		t.Fatalf("result: state=%s proof=%s", res.State, res.Proof.Hex())
	}
	if h.fetcher.calls != 0 {
		t.Fatalf("polls: got %d want 0", h.fetcher.calls)
	}
	stored, ok, err := blobstore.LoadProof(context.Background(), h.store, burnHash)
	if err != nil || !ok || len(stored) != 2 || stored[0] != 0xaa {
		t.Fatalf("stored proof: ok=%v err=%v %x", ok, err, stored)
	}
}

func TestExit_StartFailureResumesWithProof(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	h.root.errs = map[string]error{"startExitWithBurntTokens": chainclient.ErrTxFailed}
	_, err := h.orch.Exit(context.Background(), burnHash)

	var rerr *ResumeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResumeError, got %v", err)
	}
	if !errors.Is(err, exit.ErrStartFailed) {
		t.Fatalf("expected ErrStartFailed, got %v", err)
	}
	want := "exit --proof 0xf90210 " + burnHash.Hex()
	if rerr.State != StateCheckpointed || rerr.ResumeCommand() != want {
		t.Fatalf("resume: state=%s cmd=%q want %q", rerr.State, rerr.ResumeCommand(), want)
	}
}

func TestExitWithProof_RequiresPayload(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	_, err := h.orch.ExitWithProof(context.Background(), burnHash, proofservice.Proof{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if len(h.root.calls) != 0 {
		t.Fatalf("expected no exit calls")
	}
}

func TestExit_ProcessFailureCarriesProof(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	h.root.errs = map[string]error{"processExits": chainclient.ErrTxFailed}
	_, err := h.orch.Exit(context.Background(), burnHash)

	var rerr *ResumeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResumeError, got %v", err)
	}
	var ferr *exit.FinalizeError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FinalizeError in chain, got %v", err)
	}
	if rerr.State != StateExitingStarted || rerr.Proof != "0xf90210" || rerr.ResumeCommand() != "finalize" {
		t.Fatalf("resume error: %+v cmd=%q", rerr, rerr.ResumeCommand())
	}
}

func TestCheck_ReturnsProofOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 2)
	res, err := h.orch.Check(context.Background(), burnHash)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.State != StateCheckpointed || res.Proof.Empty() {
		t.Fatalf("result: %+v", res)
	}
	if len(h.root.calls) != 0 || len(h.child.calls) != 0 {
		t.Fatalf("Check must not transact")
	}
}

func TestFinalize_SingleProcessExits(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	res, err := h.orch.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.State != StateDone || res.Finalize == nil {
		t.Fatalf("result: %+v", res)
	}
	if got := h.root.methods(); len(got) != 1 || got[0] != "processExits" {
		t.Fatalf("root calls: %v", got)
	}
	if h.root.calls[0].To != manager {
		t.Fatalf("target: %s", h.root.calls[0].To)
	}
}

func TestWithdraw_CancelledDuringPolling(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 1_000)
	ctx, cancel := context.WithCancel(context.Background())
	poller, err := proofservice.NewPoller(h.fetcher, proofservice.PollerConfig{
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	h.orch.poller = poller

	_, err = h.orch.Withdraw(ctx, mustAmount(t, "1"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var rerr *ResumeError
	if !errors.As(err, &rerr) || rerr.BurnTx != burnHash {
		t.Fatalf("resume error: %+v", rerr)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, 0)
	if _, err := New(h.child, h.orch.poller, h.orch.exits, Config{ChildToken: childToken}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing root token: %v", err)
	}

	checkOnly, err := New(nil, h.orch.poller, nil, Config{ChildToken: childToken, RootToken: rootToken, AutoExit: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := checkOnly.Check(context.Background(), burnHash); err != nil {
		t.Fatalf("Check without chain clients: %v", err)
	}
	if _, err := checkOnly.Withdraw(context.Background(), mustAmount(t, "1")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Withdraw without child: %v", err)
	}
	if _, err := checkOnly.Finalize(context.Background()); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Finalize without exits: %v", err)
	}
}
