package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sanketsaagar/POL-ETH-BRIDGE/internal/txlog"
)

var ErrInvalidConfig = errors.New("txlog/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("txlog/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, r txlog.TransactionRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.BlockNumber > math.MaxInt64 {
		return fmt.Errorf("%w: block number too large", txlog.ErrInvalidRecord)
	}
	submitted := r.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("txlog/postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prev, err := scanRecord(tx.QueryRow(ctx, selectSQL+` WHERE tx_hash = $1 FOR UPDATE`, r.Hash[:]))
	switch {
	case errors.Is(err, txlog.ErrNotFound):
		_, err = tx.Exec(ctx, `
			INSERT INTO bridge_transactions (tx_hash, chain, method, to_address, status, block_number, submitted_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		`, r.Hash[:], string(r.Chain), r.Method, r.To[:], string(r.Status), int64(r.BlockNumber), submitted)
		if err != nil {
			return fmt.Errorf("txlog/postgres: insert: %w", err)
		}
	case err != nil:
		return err
	default:
		if err := txlog.CheckTransition(prev, r); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE bridge_transactions
			SET status = $2, block_number = $3, updated_at = now()
			WHERE tx_hash = $1
		`, r.Hash[:], string(r.Status), int64(r.BlockNumber))
		if err != nil {
			return fmt.Errorf("txlog/postgres: update: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("txlog/postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, hash common.Hash) (txlog.TransactionRecord, error) {
	if s == nil || s.pool == nil {
		return txlog.TransactionRecord{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return scanRecord(s.pool.QueryRow(ctx, selectSQL+` WHERE tx_hash = $1`, hash[:]))
}

func (s *Store) List(ctx context.Context, limit int) ([]txlog.TransactionRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, selectSQL+` ORDER BY submitted_at DESC, tx_hash ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("txlog/postgres: list: %w", err)
	}
	defer rows.Close()

	var out []txlog.TransactionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("txlog/postgres: list rows: %w", err)
	}
	return out, nil
}

const selectSQL = `SELECT tx_hash, chain, method, to_address, status, block_number, submitted_at FROM bridge_transactions`

func scanRecord(row pgx.Row) (txlog.TransactionRecord, error) {
	var (
		hash, to      []byte
		chain, status string
		method        string
		block         int64
		submitted     time.Time
	)
	if err := row.Scan(&hash, &chain, &method, &to, &status, &block, &submitted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return txlog.TransactionRecord{}, txlog.ErrNotFound
		}
		return txlog.TransactionRecord{}, fmt.Errorf("txlog/postgres: scan: %w", err)
	}
	if len(hash) != common.HashLength || len(to) != common.AddressLength || block < 0 {
		return txlog.TransactionRecord{}, fmt.Errorf("txlog/postgres: corrupt row")
	}
	return txlog.TransactionRecord{
		Hash:        common.BytesToHash(hash),
		Chain:       txlog.Chain(chain),
		Method:      method,
		To:          common.BytesToAddress(to),
		Status:      txlog.Status(status),
		BlockNumber: uint64(block),
		SubmittedAt: submitted.UTC(),
	}, nil
}
