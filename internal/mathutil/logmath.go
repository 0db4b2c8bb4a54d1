package mathutil

import (
	"errors"
	"math"
)

// LogZero represents log(0), used as negative infinity in log-domain arithmetic.
const LogZero = -1e30

// LogOne represents log(1).
const LogOne = 0.0

// ErrBadLogBase is returned by NewLogMath for a base that cannot be used.
var ErrBadLogBase = errors.New("mathutil: log base must be greater than 1")

// LogAdd returns log(exp(a) + exp(b)) in a numerically stable way.
// Uses threshold-based early exit to skip expensive exp/log1p when the
// smaller value contributes less than float64 precision (exp(-36) ≈ 2.3e-16).
func LogAdd(a, b float64) float64 {
	if a > b {
		if b <= LogZero {
			return a
		}
		d := b - a
		if d < -36.0 {
			return a
		}
		return a + math.Log1p(math.Exp(d))
	}
	if a <= LogZero {
		return b
	}
	d := a - b
	if d < -36.0 {
		return b
	}
	return b + math.Log1p(math.Exp(d))
}

// LogSub returns log(exp(a) - exp(b)), assuming a > b.
func LogSub(a, b float64) float64 {
	if b <= LogZero {
		return a
	}
	if a <= b {
		return LogZero
	}
	return a + math.Log1p(-math.Exp(b-a))
}

// LogMath converts between the linear domain, natural logs and the log base
// used by scores in the rest of the system. A LogMath is immutable and safe
// for concurrent use.
type LogMath struct {
	base      float64
	lnBase    float64
	invLnBase float64
	maxLogVal float64
	minLogVal float64
}

// NewLogMath creates a LogMath for the given base.
func NewLogMath(base float64) (*LogMath, error) {
	if !(base > 1) || math.IsInf(base, 0) {
		return nil, ErrBadLogBase
	}
	lm := &LogMath{base: base, lnBase: math.Log(base)}
	lm.invLnBase = 1 / lm.lnBase
	lm.maxLogVal = lm.LinearToLog(math.MaxFloat64)
	lm.minLogVal = lm.LinearToLog(math.SmallestNonzeroFloat64)
	return lm, nil
}

var naturalLogMath, _ = NewLogMath(math.E)

// Natural returns the shared natural-log LogMath.
func Natural() *LogMath { return naturalLogMath }

// Base returns the log base.
func (lm *LogMath) Base() float64 { return lm.base }

// LinearToLog converts a linear value to the log domain. Zero and negative
// values map to LogZero.
func (lm *LogMath) LinearToLog(v float64) float64 {
	if !(v > 0) {
		return LogZero
	}
	r := math.Log(v) * lm.invLnBase
	if r < LogZero {
		return LogZero
	}
	return r
}

// LogToLinear converts a log-domain value back to the linear domain.
func (lm *LogMath) LogToLinear(v float64) float64 {
	switch {
	case v < lm.minLogVal:
		return 0
	case v > lm.maxLogVal:
		return math.MaxFloat64
	}
	return math.Exp(lm.LogToLn(v))
}

// LnToLog converts a natural log to this base.
func (lm *LogMath) LnToLog(v float64) float64 {
	if v <= LogZero {
		return LogZero
	}
	return v * lm.invLnBase
}

// LogToLn converts a value in this base to a natural log.
func (lm *LogMath) LogToLn(v float64) float64 {
	if v <= LogZero {
		return LogZero
	}
	return v * lm.lnBase
}

// Log10ToLog converts a base-10 log to this base.
func (lm *LogMath) Log10ToLog(v float64) float64 {
	if v <= LogZero {
		return LogZero
	}
	return v * math.Ln10 * lm.invLnBase
}

// AddAsLinear returns log(base^a + base^b) in this base.
func (lm *LogMath) AddAsLinear(a, b float64) float64 {
	return lm.LnToLog(LogAdd(lm.LogToLn(a), lm.LogToLn(b)))
}
