// Package exit completes plasma exits on the root chain for burns that have been checkpointed.
package exit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/chainclient"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/contracts"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/proofservice"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
)

var (
	ErrInvalidConfig = errors.New("exit: invalid config")
	ErrStartFailed   = errors.New("exit: start exit failed")
)

type State int

const (
	StateNotStarted State = iota
	StateStarted
	StateProcessed
	StateAlreadyStarted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarted:
		return "started"
	case StateProcessed:
		return "processed"
	case StateAlreadyStarted:
		return "already_started"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FinalizeError reports a failed processExits after the exit itself was registered. Proof is the
// payload that was submitted, so the caller can retry finalization or the whole exit.
type FinalizeError struct {
	Token common.Address
	Proof proofservice.Proof
	Err   error
}

func (e *FinalizeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("exit: process exits for %s failed (proof %s): %v", e.Token, e.Proof.Hex(), e.Err)
}

func (e *FinalizeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transactor is implemented by chainclient.Client.
type Transactor interface {
	Transact(ctx context.Context, call chainclient.Call) (txlog.TransactionRecord, error)
}

type Config struct {
	ERC20Predicate  common.Address
	WithdrawManager common.Address

	Log *slog.Logger
}

// Processor drives startExitWithBurntTokens and processExits on the root chain.
type Processor struct {
	root Transactor
	cfg  Config
}

type Result struct {
	State   State
	Start   *txlog.TransactionRecord
	Process *txlog.TransactionRecord
}

func NewProcessor(root Transactor, cfg Config) (*Processor, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root transactor", ErrInvalidConfig)
	}
	if (cfg.ERC20Predicate == common.Address{}) || (cfg.WithdrawManager == common.Address{}) {
		return nil, fmt.Errorf("%w: predicate and withdraw manager addresses are required", ErrInvalidConfig)
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Processor{root: root, cfg: cfg}, nil
}

// CompleteExit starts the exit for proof and then processes exits for token.
//
// An exit that is already registered is not an error; processing still runs. Any other start
// failure is returned without calling processExits.
func (p *Processor) CompleteExit(ctx context.Context, proof proofservice.Proof, token common.Address) (Result, error) {
	if proof.Empty() {
		return Result{State: StateNotStarted}, fmt.Errorf("%w: empty proof", ErrInvalidConfig)
	}
	if (token == common.Address{}) {
		return Result{State: StateNotStarted}, fmt.Errorf("%w: zero token", ErrInvalidConfig)
	}

	data, err := contracts.PackStartExitWithBurntTokens(proof.Bytes())
	if err != nil {
		return Result{State: StateNotStarted}, err
	}

	res := Result{State: StateStarted}
	rec, err := p.root.Transact(ctx, chainclient.Call{
		Method: "startExitWithBurntTokens",
		To:     p.cfg.ERC20Predicate,
		Data:   data,
	})
	switch {
	case err == nil:
		res.Start = &rec
		p.cfg.Log.Info("exit started", "tx", rec.Hash.Hex(), "block", rec.BlockNumber)
	case errors.Is(err, chainclient.ErrExitAlreadyStarted):
		res.State = StateAlreadyStarted
		p.cfg.Log.Info("exit already started, processing exits", "err", err)
	default:
		return Result{State: StateNotStarted}, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	processed, err := p.FinalizeExit(ctx, token)
	if err != nil {
		return res, &FinalizeError{Token: token, Proof: proof, Err: err}
	}
	res.State = StateProcessed
	res.Process = &processed
	return res, nil
}

// FinalizeExit issues a single processExits(token) call.
func (p *Processor) FinalizeExit(ctx context.Context, token common.Address) (txlog.TransactionRecord, error) {
	data, err := contracts.PackProcessExits(token)
	if err != nil {
		return txlog.TransactionRecord{}, err
	}
	rec, err := p.root.Transact(ctx, chainclient.Call{
		Method: "processExits",
		To:     p.cfg.WithdrawManager,
		Data:   data,
	})
	if err != nil {
		return rec, err
	}
	p.cfg.Log.Info("exits processed", "token", token.Hex(), "tx", rec.Hash.Hex(), "block", rec.BlockNumber)
	return rec, nil
}
