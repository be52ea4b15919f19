// Package fixedpoint implements the 17.14 signed fixed-point format used by
// the MLFQS scheduler to average load and CPU usage without a floating point
// unit.
package fixedpoint

// Q is a 17.14 fixed-point value: 17 integer bits, 14 fractional bits, one
// sign bit borrowed from the top of the integer range. The zero value is 0.
type Q int32

const fbits = 14
const f = 1 << fbits

// FromInt converts an integer to fixed-point.
func FromInt(n int) Q {
	return Q(n * f)
}

// ToInt truncates a fixed-point value toward zero.
func (x Q) ToInt() int {
	return int(x) / f
}

// ToIntRound converts a fixed-point value to the nearest integer, rounding
// half away from zero.
func (x Q) ToIntRound() int {
	if x >= 0 {
		return int(x+f/2) / f
	}
	return int(x-f/2) / f
}

// Add returns x + y.
func (x Q) Add(y Q) Q {
	return x + y
}

// Sub returns x - y.
func (x Q) Sub(y Q) Q {
	return x - y
}

// AddInt returns x + n.
func (x Q) AddInt(n int) Q {
	return x + FromInt(n)
}

// SubInt returns x - n.
func (x Q) SubInt(n int) Q {
	return x - FromInt(n)
}

// Mul returns x * y.
func (x Q) Mul(y Q) Q {
	return Q((int64(x) * int64(y)) / f)
}

// MulInt returns x * n.
func (x Q) MulInt(n int) Q {
	return x * Q(n)
}

// Div returns x / y.
func (x Q) Div(y Q) Q {
	return Q((int64(x) * f) / int64(y))
}

// DivInt returns x / n.
func (x Q) DivInt(n int) Q {
	return Q(int64(x) / int64(n))
}
