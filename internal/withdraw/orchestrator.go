// Package withdraw moves tokens from the child chain back to the root chain: burn, wait for the
// burn to be checkpointed, then start and process the exit.
//
// The Orchestrator keeps no state between calls. Each entry point rebuilds its position from the
// handle it is given, so an interrupted withdrawal is resumed with Exit or Finalize.
package withdraw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/amount"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/blobstore"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/chainclient"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/contracts"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/exit"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/proofservice"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/queue"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
)

var (
	ErrInvalidConfig       = errors.New("withdraw: invalid config")
	ErrInsufficientBalance = errors.New("withdraw: insufficient balance")
)

// ChildChain is implemented by chainclient.Client.
type ChildChain interface {
	Address() common.Address
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Transact(ctx context.Context, call chainclient.Call) (txlog.TransactionRecord, error)
}

// ProofPoller is implemented by proofservice.Poller.
type ProofPoller interface {
	PollForProof(ctx context.Context, burnTx common.Hash) (proofservice.Proof, error)
}

// ExitProcessor is implemented by exit.Processor.
type ExitProcessor interface {
	CompleteExit(ctx context.Context, proof proofservice.Proof, token common.Address) (exit.Result, error)
	FinalizeExit(ctx context.Context, token common.Address) (txlog.TransactionRecord, error)
}

// EventEmitter is implemented by queue.Emitter.
type EventEmitter interface {
	Emit(ctx context.Context, ev queue.Event) error
}

type Config struct {
	ChildToken common.Address
	RootToken  common.Address

	// AutoExit continues past the burn into polling and exit. When false, Withdraw stops in
	// StateManualHandoff after the burn is confirmed.
	AutoExit bool

	// Network labels stored exit payloads.
	Network string

	// Artifacts and Events are optional.
	Artifacts blobstore.Store
	Events    EventEmitter

	Log *slog.Logger
}

type Orchestrator struct {
	child  ChildChain
	poller ProofPoller
	exits  ExitProcessor
	cfg    Config
}

// Result describes how far an entry point got. Records are set for the steps that ran.
type Result struct {
	State  State
	BurnTx common.Hash
	Proof  proofservice.Proof

	Burn     *txlog.TransactionRecord
	Exit     *exit.Result
	Finalize *txlog.TransactionRecord
}

// New builds an Orchestrator. Collaborators are checked per entry point so a command only needs
// the ones it uses: Withdraw needs child (plus poller and exits with AutoExit), Check needs poller,
// Exit needs poller and exits, Finalize needs exits.
func New(child ChildChain, poller ProofPoller, exits ExitProcessor, cfg Config) (*Orchestrator, error) {
	if (cfg.ChildToken == common.Address{}) {
		return nil, fmt.Errorf("%w: missing child token", ErrInvalidConfig)
	}
	if (cfg.RootToken == common.Address{}) {
		return nil, fmt.Errorf("%w: missing root token", ErrInvalidConfig)
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Orchestrator{child: child, poller: poller, exits: exits, cfg: cfg}, nil
}

// Withdraw burns amt on the child chain and, with AutoExit, drives the exit to completion.
func (o *Orchestrator) Withdraw(ctx context.Context, amt amount.Amount) (Result, error) {
	res := Result{State: StateIdle}
	if o.child == nil || (o.cfg.AutoExit && (o.poller == nil || o.exits == nil)) {
		return res, o.fail(res, fmt.Errorf("%w: withdraw needs a child chain client, and a poller and exit processor with auto exit", ErrInvalidConfig))
	}
	if amt.IsZero() {
		return res, o.fail(res, fmt.Errorf("%w: amount must be > 0", amount.ErrInvalidAmount))
	}
	owner := o.child.Address()
	log := o.cfg.Log.With("amount", amt.String(), "owner", owner.Hex())

	balance, err := o.child.TokenBalance(ctx, o.cfg.ChildToken, owner)
	if err != nil {
		return res, o.fail(res, err)
	}
	if amt.Exceeds(balance) {
		return res, o.fail(res, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, amount.Format(balance, amt.Decimals()), amt))
	}

	res.State = StateBurning
	units := amt.Units()
	data, err := contracts.PackWithdraw(units)
	if err != nil {
		return res, o.fail(res, err)
	}
	log.Info("burning on child chain", "token", o.cfg.ChildToken.Hex())
	rec, err := o.child.Transact(ctx, chainclient.Call{
		Method: "withdraw",
		To:     o.cfg.ChildToken,
		Data:   data,
		Value:  units,
	})
	res.BurnTx = rec.Hash
	if err != nil {
		return res, o.fail(res, err)
	}
	res.Burn = &rec
	res.State = StateBurned
	log.Info("burn confirmed", "burn_tx", rec.Hash.Hex(), "block", rec.BlockNumber)
	o.emit(ctx, res, queue.Event{Kind: "withdraw.burned", Chain: string(rec.Chain), TxHash: rec.Hash.Hex(), Amount: amt.String()})

	if !o.cfg.AutoExit {
		res.State = StateManualHandoff
		log.Info("auto exit disabled, resume with exit once checkpointed", "burn_tx", rec.Hash.Hex())
		o.emit(ctx, res, queue.Event{Kind: "withdraw.handoff"})
		return res, nil
	}
	return o.exitFrom(ctx, res)
}

// Check polls the proof service for burnTx and returns the exit payload once checkpointed.
func (o *Orchestrator) Check(ctx context.Context, burnTx common.Hash) (Result, error) {
	res := Result{State: StateBurned, BurnTx: burnTx}
	if (burnTx == common.Hash{}) {
		return res, o.fail(res, fmt.Errorf("%w: missing burn tx", ErrInvalidConfig))
	}
	if o.poller == nil {
		return res, o.fail(res, fmt.Errorf("%w: check needs a proof poller", ErrInvalidConfig))
	}
	return o.checkpoint(ctx, res)
}

// Exit resumes a confirmed burn: poll for its payload, then start and process the exit.
func (o *Orchestrator) Exit(ctx context.Context, burnTx common.Hash) (Result, error) {
	res := Result{State: StateBurned, BurnTx: burnTx}
	if (burnTx == common.Hash{}) {
		return res, o.fail(res, fmt.Errorf("%w: missing burn tx", ErrInvalidConfig))
	}
	if o.poller == nil || o.exits == nil {
		return res, o.fail(res, fmt.Errorf("%w: exit needs a proof poller and exit processor", ErrInvalidConfig))
	}
	return o.exitFrom(ctx, res)
}

// ExitWithProof starts and processes the exit for burnTx using a payload obtained elsewhere, such
// as the output of an earlier check. The proof service is not contacted.
func (o *Orchestrator) ExitWithProof(ctx context.Context, burnTx common.Hash, proof proofservice.Proof) (Result, error) {
	res := Result{State: StateCheckpointed, BurnTx: burnTx, Proof: proof}
	if (burnTx == common.Hash{}) {
		return res, o.fail(res, fmt.Errorf("%w: missing burn tx", ErrInvalidConfig))
	}
	if proof.Empty() {
		return res, o.fail(res, fmt.Errorf("%w: missing exit payload", ErrInvalidConfig))
	}
	if o.exits == nil {
		return res, o.fail(res, fmt.Errorf("%w: exit needs an exit processor", ErrInvalidConfig))
	}
	if o.cfg.Artifacts != nil {
		if err := blobstore.SaveProof(ctx, o.cfg.Artifacts, burnTx, o.cfg.Network, proof.Bytes()); err != nil {
			o.cfg.Log.Warn("store exit payload failed", "burn_tx", burnTx.Hex(), "err", err)
		}
	}
	return o.completeExit(ctx, res)
}

// Finalize calls processExits for the root token once.
func (o *Orchestrator) Finalize(ctx context.Context) (Result, error) {
	res := Result{State: StateExitingStarted}
	if o.exits == nil {
		return res, o.fail(res, fmt.Errorf("%w: finalize needs an exit processor", ErrInvalidConfig))
	}
	rec, err := o.exits.FinalizeExit(ctx, o.cfg.RootToken)
	if err != nil {
		return res, o.fail(res, err)
	}
	res.Finalize = &rec
	res.State = StateDone
	o.emit(ctx, res, queue.Event{Kind: "withdraw.finalized", Chain: string(rec.Chain), TxHash: rec.Hash.Hex()})
	return res, nil
}

func (o *Orchestrator) exitFrom(ctx context.Context, res Result) (Result, error) {
	res, err := o.checkpoint(ctx, res)
	if err != nil {
		return res, err
	}
	return o.completeExit(ctx, res)
}

func (o *Orchestrator) completeExit(ctx context.Context, res Result) (Result, error) {
	exitRes, err := o.exits.CompleteExit(ctx, res.Proof, o.cfg.RootToken)
	res.Exit = &exitRes
	if exitRes.State == exit.StateStarted || exitRes.State == exit.StateAlreadyStarted || exitRes.State == exit.StateProcessed {
		res.State = StateExitingStarted
	}
	if err != nil {
		return res, o.fail(res, err)
	}
	res.State = StateExitingProcessed
	if exitRes.Process != nil {
		o.emit(ctx, res, queue.Event{Kind: "withdraw.exit_processed", Chain: string(exitRes.Process.Chain), TxHash: exitRes.Process.Hash.Hex()})
	}

	res.State = StateDone
	o.cfg.Log.Info("withdrawal complete", "burn_tx", res.BurnTx.Hex(), "exit_state", exitRes.State.String())
	return res, nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, res Result) (Result, error) {
	res.State = StatePollingCheckpoint
	log := o.cfg.Log.With("burn_tx", res.BurnTx.Hex())

	if o.cfg.Artifacts != nil {
		b, ok, err := blobstore.LoadProof(ctx, o.cfg.Artifacts, res.BurnTx)
		switch {
		case err != nil:
			log.Warn("load stored exit payload failed", "err", err)
		case ok:
			res.Proof = proofservice.NewProof(b)
			res.State = StateCheckpointed
			log.Info("using stored exit payload", "proof_bytes", len(b))
			return res, nil
		}
	}

	log.Info("waiting for checkpoint")
	proof, err := o.poller.PollForProof(ctx, res.BurnTx)
	if err != nil {
		return res, o.fail(res, err)
	}
	res.Proof = proof
	res.State = StateCheckpointed

	if o.cfg.Artifacts != nil {
		if err := blobstore.SaveProof(ctx, o.cfg.Artifacts, res.BurnTx, o.cfg.Network, proof.Bytes()); err != nil {
			log.Warn("store exit payload failed", "err", err)
		}
	}
	o.emit(ctx, res, queue.Event{Kind: "withdraw.checkpointed", Proof: proof.Hex()})
	return res, nil
}

func (o *Orchestrator) fail(res Result, err error) error {
	rerr := &ResumeError{State: res.State, BurnTx: res.BurnTx, Proof: res.Proof.Hex(), Err: err}
	o.cfg.Log.Error("withdrawal step failed", "state", res.State.String(), "burn_tx", res.BurnTx.Hex(), "err", err)
	// The caller's context may already be cancelled; the failure event still goes out.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.emit(ctx, res, queue.Event{Kind: "withdraw.failed", Error: err.Error()})
	return rerr
}

func (o *Orchestrator) emit(ctx context.Context, res Result, ev queue.Event) {
	if o.cfg.Events == nil {
		return
	}
	ev.State = res.State.String()
	if (res.BurnTx != common.Hash{}) {
		ev.BurnTx = res.BurnTx.Hex()
	}
	if err := o.cfg.Events.Emit(ctx, ev); err != nil {
		o.cfg.Log.Warn("emit event failed", "kind", ev.Kind, "err", err)
	}
}
