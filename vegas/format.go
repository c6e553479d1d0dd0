package vegas

import (
	"math"
	"strconv"
	"strings"
)

// Scientific formats v with at most 10 fraction digits in the mantissa and an
// unpadded exponent: 0.05 is "5E-2", 0.000123456 is "1.23456E-4".
func Scientific(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	if math.IsInf(v, 0) {
		if v > 0 {
			return "Infinity"
		}
		return "-Infinity"
	}

	s := strconv.FormatFloat(v, 'E', 10, 64)
	mantissa, exponent, _ := strings.Cut(s, "E")

	mantissa = strings.TrimRight(mantissa, "0")
	mantissa = strings.TrimSuffix(mantissa, ".")

	// Exponents are always well formed here
	exp, _ := strconv.Atoi(exponent)

	return mantissa + "E" + strconv.Itoa(exp)
}
