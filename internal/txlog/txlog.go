// Package txlog keeps an audit trail of the transactions this tool submits.
//
// The trail is informational: the withdrawal flow never reads it to decide what to do next.
package txlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidRecord = errors.New("txlog: invalid record")
	ErrNotFound      = errors.New("txlog: not found")
	ErrImmutable     = errors.New("txlog: record is final")
)

type Chain string

const (
	ChainRoot  Chain = "root"
	ChainChild Chain = "child"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Final reports whether records in this status can no longer change.
func (s Status) Final() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// TransactionRecord describes one submitted transaction.
type TransactionRecord struct {
	Hash        common.Hash
	Chain       Chain
	Method      string
	To          common.Address
	Status      Status
	BlockNumber uint64
	SubmittedAt time.Time
}

func (r TransactionRecord) Validate() error {
	if (r.Hash == common.Hash{}) {
		return fmt.Errorf("%w: missing hash", ErrInvalidRecord)
	}
	switch r.Chain {
	case ChainRoot, ChainChild:
	default:
		return fmt.Errorf("%w: unknown chain %q", ErrInvalidRecord, r.Chain)
	}
	switch r.Status {
	case StatusPending, StatusConfirmed, StatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	if r.Method == "" {
		return fmt.Errorf("%w: missing method", ErrInvalidRecord)
	}
	return nil
}

// Store persists records keyed by hash. Put inserts or advances a pending record; a final record
// only accepts an identical write.
type Store interface {
	Put(ctx context.Context, r TransactionRecord) error
	Get(ctx context.Context, hash common.Hash) (TransactionRecord, error)
	List(ctx context.Context, limit int) ([]TransactionRecord, error)
}

// CheckTransition returns ErrImmutable when next would rewrite a final record.
func CheckTransition(prev, next TransactionRecord) error {
	if !prev.Status.Final() {
		return nil
	}
	if prev.Status != next.Status || prev.BlockNumber != next.BlockNumber || prev.Chain != next.Chain || prev.Method != next.Method || prev.To != next.To {
		return fmt.Errorf("%w: %s is %s", ErrImmutable, prev.Hash, prev.Status)
	}
	return nil
}
