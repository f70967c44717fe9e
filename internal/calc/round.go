package calc

import (
	"math"
	"strconv"
	"strings"
)

// FormatFixed renders x with exactly places fractional digits, rounding half
// away from zero on the shortest decimal representation of x.
func FormatFixed(x float64, places int) string {
	if places < 0 {
		places = 0
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	neg := x < 0
	s := strconv.FormatFloat(math.Abs(x), 'f', -1, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var digits []byte
	if len(frac) <= places {
		digits = []byte(intPart + frac + strings.Repeat("0", places-len(frac)))
	} else {
		digits = []byte(intPart + frac[:places])
		if frac[places] >= '5' {
			digits = incrementDigits(digits)
		}
	}

	out := string(digits)
	if places > 0 {
		cut := len(out) - places
		out = out[:cut] + "." + out[cut:]
	}
	if neg && strings.Trim(out, "0.") != "" {
		out = "-" + out
	}
	return out
}

// Round rounds x to places decimal digits with FormatFixed semantics.
func Round(x float64, places int) float64 {
	v, err := strconv.ParseFloat(FormatFixed(x, places), 64)
	if err != nil {
		return x
	}
	if v == 0 {
		return 0
	}
	return v
}

func incrementDigits(digits []byte) []byte {
	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] < '9' {
			digits[i]++
			return digits
		}
		digits[i] = '0'
	}
	return append([]byte{'1'}, digits...)
}
