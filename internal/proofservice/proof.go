package proofservice

import "github.com/ethereum/go-ethereum/common/hexutil"

// Proof is the opaque exit payload passed to startExitWithBurntTokens.
type Proof struct {
	b []byte
}

func NewProof(b []byte) Proof {
	return Proof{b: append([]byte(nil), b...)}
}

// ParseProof decodes a 0x-prefixed payload, as printed by Hex.
func ParseProof(s string) (Proof, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Proof{}, err
	}
	return NewProof(b), nil
}

func (p Proof) Bytes() []byte { return append([]byte(nil), p.b...) }

func (p Proof) Hex() string {
	if len(p.b) == 0 {
		return ""
	}
	return hexutil.Encode(p.b)
}

func (p Proof) Empty() bool { return len(p.b) == 0 }
