package xrage

import "math"

// MaxQuantizeDigits is the largest supported number of decimal digits.
const MaxQuantizeDigits = 9

var pow10 = [MaxQuantizeDigits + 1]float64{1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9}

// Quantize rounds v to the given number of decimal digits:
// round(v*10^digits) / 10^digits, computed in float64 and narrowed once.
// digits <= 0 returns v. Quantizing an already quantized value returns it
// unchanged, and the result of a finite v is finite.
func Quantize(v float32, digits int) float32 {
	if digits <= 0 {
		return v
	}
	if digits > MaxQuantizeDigits {
		digits = MaxQuantizeDigits
	}
	scale := pow10[digits]
	return float32(math.Round(float64(v)*scale) / scale)
}
