package eth

import (
	"errors"
	"math/big"
	"testing"
)

func TestCalc1559Fees(t *testing.T) {
	tests := []struct {
		name              string
		base, sugg, min   int64
		wantTip, wantFees int64
	}{
		{name: "min tip wins", base: 100, sugg: 2, min: 5, wantTip: 5, wantFees: 205},
		{name: "suggested tip wins", base: 10, sugg: 30, min: 25, wantTip: 30, wantFees: 50},
		{name: "zero base fee", base: 0, sugg: 1, min: 0, wantTip: 1, wantFees: 1},
	}
	for _, tc := range tests {
		tip, fee, err := Calc1559Fees(big.NewInt(tc.base), big.NewInt(tc.sugg), big.NewInt(tc.min))
		if err != nil {
			t.Fatalf("%s: Calc1559Fees: %v", tc.name, err)
		}
		if tip.Int64() != tc.wantTip || fee.Int64() != tc.wantFees {
			t.Fatalf("%s: got tip=%s fee=%s want tip=%d fee=%d", tc.name, tip, fee, tc.wantTip, tc.wantFees)
		}
	}
}

func TestCalc1559Fees_RejectsInvalid(t *testing.T) {
	if _, _, err := Calc1559Fees(nil, big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrInvalidFeeArgs) {
		t.Fatalf("expected ErrInvalidFeeArgs, got %v", err)
	}
	if _, _, err := Calc1559Fees(big.NewInt(-1), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrInvalidFeeArgs) {
		t.Fatalf("expected ErrInvalidFeeArgs, got %v", err)
	}
}
