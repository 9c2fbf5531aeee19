package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	proofContentType = "application/octet-stream"
	proofFile        = "exit-payload.bin"
)

// ProofKey is the object key of the exit payload for burnTx.
func ProofKey(burnTx common.Hash) string {
	return "exits/" + strings.ToLower(burnTx.Hex()) + "/" + proofFile
}

// SaveProof stores the exit payload for burnTx along with the network it came from. A payload
// already stored for burnTx is left in place.
func SaveProof(ctx context.Context, s Store, burnTx common.Hash, network string, payload []byte) error {
	if s == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty exit payload", ErrInvalidConfig)
	}
	key := ProofKey(burnTx)
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.Put(ctx, key, payload, PutOptions{
		ContentType: proofContentType,
		Metadata: map[string]string{
			"burn-tx": burnTx.Hex(),
			"network": network,
		},
	})
}

// LoadProof returns a previously stored exit payload. ok is false when none exists.
func LoadProof(ctx context.Context, s Store, burnTx common.Hash) ([]byte, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	obj, err := s.Get(ctx, ProofKey(burnTx))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(obj.Data) == 0 {
		return nil, false, nil
	}
	return obj.Data, true, nil
}
