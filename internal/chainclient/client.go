// Package chainclient submits bridge contract calls on one chain and reports them as
// transaction records.
package chainclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/contracts"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/eth"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
)

var (
	ErrInvalidConfig = errors.New("chainclient: invalid config")
	ErrTxFailed      = errors.New("chainclient: transaction failed")

	// ErrExitAlreadyStarted marks a startExitWithBurntTokens call rejected because an exit for the
	// same burn is already registered.
	ErrExitAlreadyStarted = errors.New("chainclient: exit already started")
)

// Backend is the subset of ethclient.Client used by Client.
type Backend interface {
	eth.Backend
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

type Config struct {
	Chain   txlog.Chain
	ChainID *big.Int

	Backend Backend
	Signer  eth.Signer

	GasLimitMultiplier  float64
	MinTipCap           *big.Int
	ReceiptPollInterval time.Duration

	// Ledger is optional; write failures are logged and never fail a call.
	Ledger txlog.Store
	Log    *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Call is one state-changing contract invocation.
type Call struct {
	Method   string
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

type Client struct {
	chain   txlog.Chain
	backend Backend
	sender  *eth.Sender
	ledger  txlog.Store
	log     *slog.Logger
	now     func() time.Time
}

func New(cfg Config) (*Client, error) {
	switch cfg.Chain {
	case txlog.ChainRoot, txlog.ChainChild:
	default:
		return nil, fmt.Errorf("%w: unknown chain %q", ErrInvalidConfig, cfg.Chain)
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidConfig)
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	sender, err := eth.NewSender(cfg.Backend, cfg.Signer, eth.SenderConfig{
		ChainID:             cfg.ChainID,
		GasLimitMultiplier:  cfg.GasLimitMultiplier,
		MinTipCap:           cfg.MinTipCap,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
		Sleep:               cfg.Sleep,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		chain:   cfg.Chain,
		backend: cfg.Backend,
		sender:  sender,
		ledger:  cfg.Ledger,
		log:     cfg.Log.With("chain", string(cfg.Chain)),
		now:     cfg.Now,
	}, nil
}

func (c *Client) Chain() txlog.Chain { return c.chain }

func (c *Client) Address() common.Address { return c.sender.Address() }

// ChainID is the id transactions are signed for.
func (c *Client) ChainID() *big.Int { return c.sender.ChainID() }

// Transact submits call and blocks until it is mined.
//
// A mined but reverted transaction returns a failed record and ErrTxFailed. Errors caused by a
// duplicate exit also match ErrExitAlreadyStarted.
func (c *Client) Transact(ctx context.Context, call Call) (txlog.TransactionRecord, error) {
	if strings.TrimSpace(call.Method) == "" {
		return txlog.TransactionRecord{}, fmt.Errorf("%w: missing method", ErrInvalidConfig)
	}
	if (call.To == common.Address{}) {
		return txlog.TransactionRecord{}, fmt.Errorf("%w: missing target for %s", ErrInvalidConfig, call.Method)
	}

	res, err := c.sender.Send(ctx, eth.TxRequest{
		To:       call.To,
		Data:     call.Data,
		Value:    call.Value,
		GasLimit: call.GasLimit,
	})
	if err != nil {
		return txlog.TransactionRecord{}, classifyRevert(fmt.Errorf("chainclient: %s: %w", call.Method, err))
	}

	rec := txlog.TransactionRecord{
		Hash:        res.TxHash,
		Chain:       c.chain,
		Method:      call.Method,
		To:          call.To,
		Status:      txlog.StatusPending,
		SubmittedAt: c.now().UTC(),
	}
	c.record(ctx, rec)
	c.log.Info("transaction submitted", "method", call.Method, "tx", rec.Hash.Hex(), "nonce", res.Nonce)

	receipt, err := c.sender.WaitMined(ctx, res.TxHash)
	if err != nil {
		return rec, fmt.Errorf("chainclient: %s: wait %s: %w", call.Method, res.TxHash, err)
	}
	if receipt.BlockNumber != nil {
		rec.BlockNumber = receipt.BlockNumber.Uint64()
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		rec.Status = txlog.StatusFailed
		c.record(ctx, rec)
		failErr := fmt.Errorf("%w: %s %s reverted in block %d", ErrTxFailed, call.Method, rec.Hash, rec.BlockNumber)
		if reason := c.replayRevert(ctx, call, receipt.BlockNumber); reason != nil {
			failErr = classifyRevert(fmt.Errorf("%w: %w", failErr, reason))
		}
		c.log.Warn("transaction reverted", "method", call.Method, "tx", rec.Hash.Hex(), "block", rec.BlockNumber, "err", failErr)
		return rec, failErr
	}

	rec.Status = txlog.StatusConfirmed
	c.record(ctx, rec)
	c.log.Info("transaction confirmed", "method", call.Method, "tx", rec.Hash.Hex(), "block", rec.BlockNumber, "gas_used", receipt.GasUsed)
	return rec, nil
}

// replayRevert re-executes a reverted call at its block to recover the node's revert error.
func (c *Client) replayRevert(ctx context.Context, call Call, block *big.Int) error {
	_, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From:  c.sender.Address(),
		To:    &call.To,
		Value: call.Value,
		Data:  call.Data,
	}, block)
	return err
}

func (c *Client) record(ctx context.Context, rec txlog.TransactionRecord) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.Put(ctx, rec); err != nil {
		c.log.Warn("ledger write failed", "tx", rec.Hash.Hex(), "status", string(rec.Status), "err", err)
	}
}

// CallContract runs a read-only call against the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	from := c.sender.Address()
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: call %s: %w", to, err)
	}
	return out, nil
}

// TokenBalance returns the ERC-20 balanceOf owner at token.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := contracts.PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := c.CallContract(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return contracts.UnpackBalanceOf(out)
}

func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: balance %s: %w", owner, err)
	}
	return bal, nil
}

// HasCode reports whether addr holds contract code at the latest block.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("chainclient: code %s: %w", addr, err)
	}
	return len(code) > 0, nil
}
