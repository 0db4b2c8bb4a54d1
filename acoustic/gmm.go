package acoustic

import (
	"errors"
	"fmt"
	"math"

	"github.com/ieee0824/dflat/internal/mathutil"
)

// Default floors applied by NewMixtureComponent.
const (
	DefaultVarianceFloor = 0.0001
	DefaultDistanceFloor = 0.0
)

var (
	// ErrDimMismatch is returned when vectors that must share a length do not.
	ErrDimMismatch = errors.New("acoustic: dimension mismatch")
	// ErrBadTransform is returned for an adaptation transform of the wrong shape.
	ErrBadTransform = errors.New("acoustic: bad adaptation transform")
)

// MixtureComponent is a single diagonal-covariance Gaussian density.
// All derived values are computed at construction; Score is a pure function.
type MixtureComponent struct {
	lm *mathutil.LogMath

	mean      []float64
	variance  []float64
	meanT     []float64
	precision []float64 // -1 / (2 * floored transformed variance)

	meanA, varA mathutil.Mat
	meanB, varB mathutil.Vec

	varianceFloor float64
	distFloor     float64 // log domain
	logNormFactor float64
}

type componentOptions struct {
	meanA, varA   mathutil.Mat
	meanB, varB   mathutil.Vec
	varianceFloor float64
	distanceFloor float64
}

// ComponentOption configures a MixtureComponent.
type ComponentOption func(*componentOptions)

// WithMeanTransform adapts the mean as a·mean + b. Either may be nil.
func WithMeanTransform(a mathutil.Mat, b mathutil.Vec) ComponentOption {
	return func(o *componentOptions) { o.meanA, o.meanB = a, b }
}

// WithVarianceTransform adapts the variance as a·variance + b. Either may be nil.
func WithVarianceTransform(a mathutil.Mat, b mathutil.Vec) ComponentOption {
	return func(o *componentOptions) { o.varA, o.varB = a, b }
}

// WithVarianceFloor sets the linear floor applied to every variance.
func WithVarianceFloor(v float64) ComponentOption {
	return func(o *componentOptions) { o.varianceFloor = v }
}

// WithDistanceFloor sets the linear floor applied to every score. Zero
// means no floor.
func WithDistanceFloor(v float64) ComponentOption {
	return func(o *componentOptions) { o.distanceFloor = v }
}

// NewMixtureComponent creates a component from a mean and variance of the
// same length. A nil lm uses natural logs.
func NewMixtureComponent(lm *mathutil.LogMath, mean, variance []float64, opts ...ComponentOption) (*MixtureComponent, error) {
	o := componentOptions{
		varianceFloor: DefaultVarianceFloor,
		distanceFloor: DefaultDistanceFloor,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(mean) != len(variance) {
		return nil, fmt.Errorf("%w: mean %d, variance %d", ErrDimMismatch, len(mean), len(variance))
	}
	dim := len(mean)
	if err := checkTransform(o.meanA, o.meanB, dim); err != nil {
		return nil, fmt.Errorf("mean: %w", err)
	}
	if err := checkTransform(o.varA, o.varB, dim); err != nil {
		return nil, fmt.Errorf("variance: %w", err)
	}
	if lm == nil {
		lm = mathutil.Natural()
	}

	mc := &MixtureComponent{
		lm:            lm,
		mean:          append([]float64(nil), mean...),
		variance:      append([]float64(nil), variance...),
		meanA:         o.meanA,
		meanB:         o.meanB,
		varA:          o.varA,
		varB:          o.varB,
		varianceFloor: o.varianceFloor,
		distFloor:     lm.LinearToLog(o.distanceFloor),
	}
	mc.meanT = mathutil.MatVec(o.meanA, mc.mean, o.meanB)
	varT := mathutil.MatVec(o.varA, mc.variance, o.varB)
	mc.precision = make([]float64, dim)
	for i, v := range varT {
		mc.precision[i] = 1.0 / (-2.0 * math.Max(v, o.varianceFloor))
	}
	mc.logNormFactor = mc.normFactor()
	return mc, nil
}

func checkTransform(a mathutil.Mat, b mathutil.Vec, dim int) error {
	if a != nil && (len(a) != dim || !mathutil.IsSquare(a)) {
		return fmt.Errorf("%w: matrix is not %dx%d", ErrBadTransform, dim, dim)
	}
	if b != nil && len(b) != dim {
		return fmt.Errorf("%w: vector length %d for dimension %d", ErrBadTransform, len(b), dim)
	}
	return nil
}

// normFactor returns 0.5 * (dim*ln(2π) - Σ ln(precision*-2)) in the
// component's log base.
func (mc *MixtureComponent) normFactor() float64 {
	sum := 0.0
	for _, p := range mc.precision {
		sum += math.Log(p * -2)
	}
	f := math.Log(2.0*math.Pi)*float64(len(mc.precision)) - sum
	return mc.lm.LnToLog(f * 0.5)
}

// Score returns the log density of values. Values shorter than the
// component's dimension score LogZero. NaN scores become LogZero and the
// result never falls below the distance floor.
func (mc *MixtureComponent) Score(values []float64) float64 {
	if len(values) < len(mc.meanT) {
		return mathutil.LogZero
	}
	acc := mathutil.WeightedSqDist(values, mc.meanT, mc.precision)
	score := mc.lm.LnToLog(acc) - mc.logNormFactor
	if math.IsNaN(score) {
		score = mathutil.LogZero
	}
	if score < mc.distFloor {
		score = mc.distFloor
	}
	return score
}

// Dim returns the feature dimension.
func (mc *MixtureComponent) Dim() int { return len(mc.mean) }

// Mean returns the untransformed mean.
func (mc *MixtureComponent) Mean() []float64 { return mc.mean }

// Variance returns the untransformed, unfloored variance.
func (mc *MixtureComponent) Variance() []float64 { return mc.variance }

// TransformedMean returns the mean after adaptation.
func (mc *MixtureComponent) TransformedMean() []float64 { return mc.meanT }

// Precision returns -1/(2·variance) per dimension after adaptation and flooring.
func (mc *MixtureComponent) Precision() []float64 { return mc.precision }

// LogNormalizationFactor returns the precomputed normalization term.
func (mc *MixtureComponent) LogNormalizationFactor() float64 { return mc.logNormFactor }

// GaussianMixture is a senone: a weighted mixture of components whose
// identity is its id, not its numeric content.
type GaussianMixture struct {
	id         int64
	lm         *mathutil.LogMath
	logWeights []float64
	components []*MixtureComponent
}

// NewGaussianMixture creates a mixture. logWeights are in lm's base and must
// match components in length. A nil lm uses natural logs.
func NewGaussianMixture(lm *mathutil.LogMath, id int64, logWeights []float64, components []*MixtureComponent) (*GaussianMixture, error) {
	if len(logWeights) != len(components) {
		return nil, fmt.Errorf("%w: %d weights for %d components", ErrDimMismatch, len(logWeights), len(components))
	}
	if lm == nil {
		lm = mathutil.Natural()
	}
	return &GaussianMixture{
		id:         id,
		lm:         lm,
		logWeights: append([]float64(nil), logWeights...),
		components: append([]*MixtureComponent(nil), components...),
	}, nil
}

// ID returns the senone id.
func (g *GaussianMixture) ID() int64 { return g.id }

// Score implements Senone.
func (g *GaussianMixture) Score(f *Frame) float64 { return g.CalculateScore(f.Values) }

// CalculateScore returns the log-sum over components of score plus weight.
// A mixture with no components scores LogZero.
func (g *GaussianMixture) CalculateScore(values []float64) float64 {
	logTotal := mathutil.LogZero
	for i, c := range g.components {
		logTotal = g.lm.AddAsLinear(logTotal, c.Score(values)+g.logWeights[i])
	}
	return logTotal
}

// ComponentScores returns each component's weighted score.
func (g *GaussianMixture) ComponentScores(values []float64) []float64 {
	out := make([]float64, len(g.components))
	for i, c := range g.components {
		out[i] = c.Score(values) + g.logWeights[i]
	}
	return out
}

// Components returns the mixture's components.
func (g *GaussianMixture) Components() []*MixtureComponent { return g.components }

// LogWeights returns the mixture weights in log domain.
func (g *GaussianMixture) LogWeights() []float64 { return g.logWeights }

// Dim returns the feature dimension, or 0 for an empty mixture.
func (g *GaussianMixture) Dim() int {
	if len(g.components) == 0 {
		return 0
	}
	return g.components[0].Dim()
}

func (g *GaussianMixture) String() string {
	return fmt.Sprintf("senone id: %d", g.id)
}
