package eth

import (
	"errors"
	"math/big"
)

var ErrInvalidFeeArgs = errors.New("eth: invalid fee args")

// Calc1559Fees returns EIP-1559 fee caps from the latest base fee.
//
// tipCap = max(suggestedTipCap, minTipCap); feeCap = 2*baseFee + tipCap.
//
// Polygon PoS rejects tips below its 25 gwei floor, so child-chain senders configure minTipCap
// accordingly.
func Calc1559Fees(baseFee, suggestedTipCap, minTipCap *big.Int) (tipCap, feeCap *big.Int, err error) {
	if baseFee == nil || suggestedTipCap == nil || minTipCap == nil {
		return nil, nil, ErrInvalidFeeArgs
	}
	if baseFee.Sign() < 0 || suggestedTipCap.Sign() < 0 || minTipCap.Sign() < 0 {
		return nil, nil, ErrInvalidFeeArgs
	}

	tip := new(big.Int).Set(suggestedTipCap)
	if tip.Cmp(minTipCap) < 0 {
		tip.Set(minTipCap)
	}
	fee := new(big.Int).Lsh(baseFee, 1)
	fee.Add(fee, tip)
	return tip, fee, nil
}
