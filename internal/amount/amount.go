package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// DefaultDecimals is the decimal count of the POL token on both chains.
const DefaultDecimals = 18

const maxDecimals = 77

var ErrInvalidAmount = errors.New("amount: invalid amount")

// Amount is a token quantity in the token's smallest unit.
type Amount struct {
	units    *big.Int
	decimals int
}

// Parse converts a decimal string such as "20" or "0.5" into smallest units.
//
// The result must be strictly positive and must not carry more fractional digits than decimals.
func Parse(s string, decimals int) (Amount, error) {
	if decimals < 0 || decimals > maxDecimals {
		return Amount{}, fmt.Errorf("%w: decimals out of range: %d", ErrInvalidAmount, decimals)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, fmt.Errorf("%w: negative value %q", ErrInvalidAmount, s)
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" && whole == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return Amount{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return Amount{}, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, s, decimals)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	units, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if units.Sign() <= 0 {
		return Amount{}, fmt.Errorf("%w: must be > 0", ErrInvalidAmount)
	}
	return Amount{units: units, decimals: decimals}, nil
}

// Units returns a copy of the smallest-unit value.
func (a Amount) Units() *big.Int {
	if a.units == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.units)
}

func (a Amount) Decimals() int { return a.decimals }

func (a Amount) IsZero() bool { return a.units == nil || a.units.Sign() == 0 }

// Exceeds reports whether a is strictly greater than balance.
func (a Amount) Exceeds(balance *big.Int) bool {
	if balance == nil {
		return !a.IsZero()
	}
	return a.Units().Cmp(balance) > 0
}

func (a Amount) String() string {
	return Format(a.Units(), a.decimals)
}

// Format renders smallest units as a decimal string without trailing fractional zeros.
func Format(units *big.Int, decimals int) string {
	if units == nil {
		return "0"
	}
	neg := units.Sign() < 0
	s := new(big.Int).Abs(units).String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
		s = whole
		if frac != "" {
			s += "." + frac
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
