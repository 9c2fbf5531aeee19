package proofservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultMaxAttempts  = 360
)

var ErrCheckpointTimeout = errors.New("proofservice: checkpoint not reached within attempt budget")

// Fetcher is implemented by Client.
type Fetcher interface {
	FetchExitPayload(ctx context.Context, burnTx common.Hash) (Proof, error)
}

type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int

	Log   *slog.Logger
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poller repeats FetchExitPayload until a payload arrives or the attempt budget is spent.
type Poller struct {
	fetcher Fetcher
	cfg     PollerConfig
}

func NewPoller(fetcher Fetcher, cfg PollerConfig) (*Poller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: nil fetcher", ErrInvalidConfig)
	}
	if cfg.Interval < 0 || cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: interval and max attempts must be >= 0", ErrInvalidConfig)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Poller{fetcher: fetcher, cfg: cfg}, nil
}

// PollForProof blocks until burnTx is checkpointed. Transient failures are logged and retried;
// only context cancellation or an exhausted budget end the loop early.
func (p *Poller) PollForProof(ctx context.Context, burnTx common.Hash) (Proof, error) {
	log := p.cfg.Log.With("burn_tx", burnTx.Hex())
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		proof, err := p.fetcher.FetchExitPayload(ctx, burnTx)
		switch {
		case err == nil:
			log.Info("burn checkpointed", "attempt", attempt, "proof_bytes", len(proof.b))
			return proof, nil
		case ctx.Err() != nil:
			return Proof{}, ctx.Err()
		case errors.Is(err, ErrNotCheckpointed):
			log.Info("burn not checkpointed yet", "attempt", attempt, "max_attempts", p.cfg.MaxAttempts)
		default:
			log.Warn("proof service attempt failed", "attempt", attempt, "err", err)
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := p.cfg.Sleep(ctx, p.cfg.Interval); err != nil {
			return Proof{}, err
		}
	}
	return Proof{}, fmt.Errorf("%w: %d attempts for %s", ErrCheckpointTimeout, p.cfg.MaxAttempts, burnTx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
