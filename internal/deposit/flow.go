// Package deposit moves root tokens onto the child chain through the DepositManager.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/amount"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/chainclient"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/contracts"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/queue"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
)

var (
	ErrInvalidConfig       = errors.New("deposit: invalid config")
	ErrInsufficientBalance = errors.New("deposit: insufficient balance")
	ErrApproveFailed       = errors.New("deposit: approve failed")
	ErrDepositFailed       = errors.New("deposit: deposit failed")
)

// RootChain is implemented by chainclient.Client.
type RootChain interface {
	Address() common.Address
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Transact(ctx context.Context, call chainclient.Call) (txlog.TransactionRecord, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, ev queue.Event) error
}

type Config struct {
	RootToken      common.Address
	DepositManager common.Address

	// Recipient on the child chain; defaults to the signing address.
	Recipient common.Address

	// CheckBalance refuses to submit when the root token balance is below the amount.
	CheckBalance bool

	Events EventEmitter
	Log    *slog.Logger
}

type Flow struct {
	root RootChain
	cfg  Config
}

type Result struct {
	Approve txlog.TransactionRecord
	Deposit txlog.TransactionRecord
}

func New(root RootChain, cfg Config) (*Flow, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root chain", ErrInvalidConfig)
	}
	if (cfg.RootToken == common.Address{}) || (cfg.DepositManager == common.Address{}) {
		return nil, fmt.Errorf("%w: root token and deposit manager are required", ErrInvalidConfig)
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Flow{root: root, cfg: cfg}, nil
}

// Deposit approves the DepositManager for amt and then deposits amt for the recipient. Each step
// waits for confirmation; nothing is retried.
func (f *Flow) Deposit(ctx context.Context, amt amount.Amount) (Result, error) {
	if amt.IsZero() {
		return Result{}, fmt.Errorf("%w: amount must be > 0", amount.ErrInvalidAmount)
	}
	from := f.root.Address()
	recipient := f.cfg.Recipient
	if (recipient == common.Address{}) {
		recipient = from
	}
	units := amt.Units()
	log := f.cfg.Log.With("amount", amt.String(), "recipient", recipient.Hex())

	if f.cfg.CheckBalance {
		bal, err := f.root.TokenBalance(ctx, f.cfg.RootToken, from)
		if err != nil {
			return Result{}, err
		}
		if amt.Exceeds(bal) {
			return Result{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, amount.Format(bal, amt.Decimals()), amt)
		}
	}

	approveData, err := contracts.PackApprove(f.cfg.DepositManager, units)
	if err != nil {
		return Result{}, err
	}
	var res Result
	res.Approve, err = f.root.Transact(ctx, chainclient.Call{
		Method: "approve",
		To:     f.cfg.RootToken,
		Data:   approveData,
	})
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrApproveFailed, err)
	}
	log.Info("deposit manager approved", "tx", res.Approve.Hash.Hex())
	f.emit(ctx, queue.Event{Kind: "deposit.approved", Chain: string(res.Approve.Chain), TxHash: res.Approve.Hash.Hex(), Amount: amt.String()})

	depositData, err := contracts.PackDepositERC20ForUser(f.cfg.RootToken, recipient, units)
	if err != nil {
		return res, err
	}
	res.Deposit, err = f.root.Transact(ctx, chainclient.Call{
		Method: "depositERC20ForUser",
		To:     f.cfg.DepositManager,
		Data:   depositData,
	})
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrDepositFailed, err)
	}
	log.Info("deposit confirmed", "tx", res.Deposit.Hash.Hex(), "block", res.Deposit.BlockNumber)
	f.emit(ctx, queue.Event{Kind: "deposit.confirmed", Chain: string(res.Deposit.Chain), TxHash: res.Deposit.Hash.Hex(), Amount: amt.String(), State: "done"})
	return res, nil
}

func (f *Flow) emit(ctx context.Context, ev queue.Event) {
	if f.cfg.Events == nil {
		return
	}
	if err := f.cfg.Events.Emit(ctx, ev); err != nil {
		f.cfg.Log.Warn("emit event failed", "kind", ev.Kind, "err", err)
	}
}
