package model

import (
	"errors"
	"strconv"
	"strings"
)

var ErrOverflow = errors.New("fixed-point overflow")

// Cents is a USD amount scaled by 10^2.
type Cents int64

// Satoshi is a BTC amount scaled by 10^8.
type Satoshi int64

// Pico is a USD amount scaled by 10^13. Realized trade legs are tracked in
// pico so fee math never loses sub-cent precision before display truncation.
type Pico int64

const (
	SatoshiPerBtc Satoshi = 100_000_000
	PicoPerCent   Pico    = 100_000_000_000
)

// CheckedMul multiplies two int64 values, failing on wraparound.
func CheckedMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a {
		return 0, ErrOverflow
	}
	return r, nil
}

// CheckedAdd adds two int64 values, failing on wraparound.
func CheckedAdd(a, b int64) (int64, error) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		return 0, ErrOverflow
	}
	return r, nil
}

// SatoshiForPrice returns the quantity purchasable with betCents at priceCents,
// floored so the buy value never exceeds the bet.
func SatoshiForPrice(priceCents, betCents Cents) Satoshi {
	if priceCents <= 0 || betCents <= 0 {
		return 0
	}
	total, err := CheckedMul(int64(betCents), int64(SatoshiPerBtc))
	if err != nil {
		return 0
	}
	return Satoshi(total / int64(priceCents))
}

// ValueCents returns the USD value of quantity at priceCents, rounded up so
// the caller never under-reserves funds.
func ValueCents(priceCents Cents, quantity Satoshi) Cents {
	if priceCents <= 0 || quantity <= 0 {
		return 0
	}
	total, err := CheckedMul(int64(priceCents), int64(quantity))
	if err != nil {
		return 0
	}
	return Cents((total + int64(SatoshiPerBtc) - 1) / int64(SatoshiPerBtc))
}

// CentsToPico widens a cent amount to pico precision.
func CentsToPico(c Cents) Pico {
	p, err := CheckedMul(int64(c), int64(PicoPerCent))
	if err != nil {
		return 0
	}
	return Pico(p)
}

// ParseUSD parses a decimal dollar string ("65123.45") into cents.
// Negative and malformed amounts parse to zero.
func ParseUSD(s string) Cents {
	return Cents(parseScaled(s, 2))
}

// ParseBTC parses a decimal bitcoin string into satoshi.
func ParseBTC(s string) Satoshi {
	return Satoshi(parseScaled(s, 8))
}

func parseScaled(s string, scale int) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s[0] == '-' {
		return 0
	}
	whole := s
	frac := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole = s[:idx]
		frac = s[idx+1:]
	}
	value := int64(0)
	if whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0
		}
		value = n
	}
	for i := 0; i < scale; i++ {
		scaled, err := CheckedMul(value, 10)
		if err != nil {
			return 0
		}
		value = scaled
		if i < len(frac) && frac[i] >= '0' && frac[i] <= '9' {
			value, err = CheckedAdd(value, int64(frac[i]-'0'))
			if err != nil {
				return 0
			}
		}
	}
	return value
}

// FormatUSD renders cents as a dollar string.
func (c Cents) FormatUSD() string {
	return formatScaled(int64(c), 2)
}

// FormatBTC renders satoshi as a bitcoin string.
func (s Satoshi) FormatBTC() string {
	return formatScaled(int64(s), 8)
}

func formatScaled(value int64, scale int) string {
	neg := value < 0
	if neg {
		value = -value
	}
	digits := strconv.FormatInt(value, 10)
	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}
	out := digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	if neg {
		out = "-" + out
	}
	return out
}
