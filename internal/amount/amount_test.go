package amount

import (
	"errors"
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "20", want: "20000000000000000000"},
		{in: "5", want: "5000000000000000000"},
		{in: "0.5", want: "500000000000000000"},
		{in: ".25", want: "250000000000000000"},
		{in: "1.000000000000000001", want: "1000000000000000001"},
		{in: " 3.10 ", want: "3100000000000000000"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			a, err := Parse(tc.in, DefaultDecimals)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := a.Units().String(); got != tc.want {
				t.Fatalf("units: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "0", "0.0", "-1", "abc", "1.2.3", "1e18", ".", "1.0000000000000000001"} {
		in := in
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(in, DefaultDecimals); !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := Format(big.NewInt(1_500_000), 6); got != "1.5" {
		t.Fatalf("got %q", got)
	}
	if got := Format(big.NewInt(7), 18); got != "0.000000000000000007" {
		t.Fatalf("got %q", got)
	}
	if got := Format(big.NewInt(42), 0); got != "42" {
		t.Fatalf("got %q", got)
	}
}

func TestExceeds(t *testing.T) {
	t.Parallel()

	a, err := Parse("20", DefaultDecimals)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Exceeds(a.Units()) {
		t.Fatalf("amount equal to balance must not exceed it")
	}
	less := new(big.Int).Sub(a.Units(), big.NewInt(1))
	if !a.Exceeds(less) {
		t.Fatalf("expected exceed")
	}
	if !a.Exceeds(nil) {
		t.Fatalf("expected exceed against nil balance")
	}
}
