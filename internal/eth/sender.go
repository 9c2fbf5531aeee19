package eth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrInvalidSenderConfig = errors.New("eth: invalid sender config")

type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type SenderConfig struct {
	ChainID            *big.Int
	GasLimitMultiplier float64
	MinTipCap          *big.Int

	ReceiptPollInterval time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
}

// Sender signs, broadcasts and waits for transactions from one account on one chain.
//
// Nonces are read from the pending pool for every send; callers run one transaction at a time.
type Sender struct {
	backend Backend
	signer  Signer
	cfg     SenderConfig
}

type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64 // optional; 0 => estimate
}

type SendResult struct {
	From   common.Address
	Nonce  uint64
	TxHash common.Hash
}

func NewSender(backend Backend, signer Signer, cfg SenderConfig) (*Sender, error) {
	if backend == nil || signer == nil {
		return nil, ErrInvalidSenderConfig
	}
	if (signer.Address() == common.Address{}) {
		return nil, fmt.Errorf("%w: zero signer address", ErrInvalidSenderConfig)
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id must be > 0", ErrInvalidSenderConfig)
	}
	if cfg.GasLimitMultiplier <= 0 {
		cfg.GasLimitMultiplier = 1
	}
	if cfg.MinTipCap == nil {
		cfg.MinTipCap = big.NewInt(0)
	}
	if cfg.MinTipCap.Sign() < 0 {
		return nil, fmt.Errorf("%w: min tip cap must be >= 0", ErrInvalidSenderConfig)
	}
	if cfg.ReceiptPollInterval <= 0 {
		return nil, fmt.Errorf("%w: receipt poll interval must be > 0", ErrInvalidSenderConfig)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Sender{backend: backend, signer: signer, cfg: cfg}, nil
}

func (s *Sender) Address() common.Address { return s.signer.Address() }

func (s *Sender) ChainID() *big.Int { return new(big.Int).Set(s.cfg.ChainID) }

// Send signs and broadcasts req, returning once the node has accepted it.
//
// Gas estimation runs against pending state, so a call that would revert fails here with the
// node's revert data attached (see RevertReason).
func (s *Sender) Send(ctx context.Context, req TxRequest) (SendResult, error) {
	from := s.signer.Address()

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		est, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &req.To,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return SendResult{}, fmt.Errorf("eth: estimate gas: %w", err)
		}
		gasLimit = applyGasMultiplier(est, s.cfg.GasLimitMultiplier)
	}

	suggestedTip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("eth: suggest tip: %w", err)
	}
	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return SendResult{}, fmt.Errorf("eth: latest header: %w", err)
	}
	if header.BaseFee == nil || header.BaseFee.Sign() < 0 {
		return SendResult{}, fmt.Errorf("eth: missing baseFee in latest header")
	}
	tipCap, feeCap, err := Calc1559Fees(header.BaseFee, suggestedTip, s.cfg.MinTipCap)
	if err != nil {
		return SendResult{}, err
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return SendResult{}, fmt.Errorf("eth: pending nonce: %w", err)
	}

	to := req.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := s.signer.SignTx(tx, s.cfg.ChainID)
	if err != nil {
		return SendResult{}, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return SendResult{}, fmt.Errorf("eth: send transaction: %w", err)
	}
	return SendResult{From: from, Nonce: nonce, TxHash: signed.Hash()}, nil
}

// WaitMined polls for the receipt of h until it is available or ctx is done.
func (s *Sender) WaitMined(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := s.backend.TransactionReceipt(ctx, h)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("eth: receipt %s: %w", h, err)
		}
		if err := s.cfg.Sleep(ctx, s.cfg.ReceiptPollInterval); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func applyGasMultiplier(est uint64, mult float64) uint64 {
	if mult <= 1 {
		return est
	}
	out := uint64(math.Ceil(float64(est) * mult))
	if out < est {
		// overflow or float error; fall back to the estimate.
		return est
	}
	return out
}
