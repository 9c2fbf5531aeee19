package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidPrivateKey = errors.New("eth: invalid private key")
	ErrInvalidSigner     = errors.New("eth: invalid signer")
	ErrChainMismatch     = errors.New("eth: transaction chain id mismatch")
)

// ParsePrivateKeyHex parses a single secp256k1 private key (32 bytes hex, optional 0x prefix).
//
// The returned error is sanitized and must not include key material.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if s == "" {
		return nil, ErrInvalidPrivateKey
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// Signer signs transactions for a single from-address.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner signs with an in-memory key. One KeySigner serves the root and child chain, so every
// call names the chain and typed transactions must carry the same id.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address

	mu      sync.Mutex
	byChain map[uint64]types.Signer
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	s := &KeySigner{key: key, byChain: make(map[uint64]types.Signer)}
	if key != nil {
		s.addr = crypto.PubkeyToAddress(key.PublicKey)
	}
	return s
}

func (s *KeySigner) Address() common.Address { return s.addr }

func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s == nil || s.key == nil || tx == nil || chainID == nil || chainID.Sign() <= 0 || !chainID.IsUint64() {
		return nil, ErrInvalidSigner
	}
	if tx.Type() != types.LegacyTxType && tx.ChainId().Cmp(chainID) != 0 {
		return nil, fmt.Errorf("%w: tx names %s, signing for %s", ErrChainMismatch, tx.ChainId(), chainID)
	}
	return types.SignTx(tx, s.signerFor(chainID), s.key)
}

func (s *KeySigner) signerFor(chainID *big.Int) types.Signer {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chainID.Uint64()
	signer, ok := s.byChain[id]
	if !ok {
		signer = types.LatestSignerForChainID(chainID)
		s.byChain[id] = signer
	}
	return signer
}
