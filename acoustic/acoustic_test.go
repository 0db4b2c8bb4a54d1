package acoustic

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/dflat/internal/mathutil"
)

func TestMixtureComponentScore(t *testing.T) {
	mc, err := NewMixtureComponent(nil, []float64{0.0}, []float64{1.0})
	require.NoError(t, err)

	// Standard normal at x=0: log(1/sqrt(2π)) ≈ -0.9189
	lp := mc.Score([]float64{0.0})
	expected := -0.5 * math.Log(2*math.Pi)
	if math.Abs(lp-expected) > 1e-9 {
		t.Errorf("Score(0) = %f, want %f", lp, expected)
	}

	lp2 := mc.Score([]float64{2.0})
	if math.Abs(lp2-(expected-2)) > 1e-9 {
		t.Errorf("Score(2) = %f, want %f", lp2, expected-2)
	}
}

func TestMixtureComponentIsPure(t *testing.T) {
	mc, err := NewMixtureComponent(nil, []float64{0.3, -1, 2}, []float64{0.5, 2, 1})
	require.NoError(t, err)
	x := []float64{0.1, 0.2, 0.3}
	a := mc.Score(x)
	b := mc.Score(x)
	if math.Float64bits(a) != math.Float64bits(b) {
		t.Errorf("Score not deterministic: %v vs %v", a, b)
	}
}

func TestMixtureComponentVarianceFloor(t *testing.T) {
	mc, err := NewMixtureComponent(nil, []float64{0, 0}, []float64{0, 1e-9})
	require.NoError(t, err)
	for i, p := range mc.Precision() {
		assert.InDelta(t, -1/(2*DefaultVarianceFloor), p, 1e-6, "precision[%d]", i)
	}

	mc, err = NewMixtureComponent(nil, []float64{0}, []float64{0}, WithVarianceFloor(0.5))
	require.NoError(t, err)
	assert.InDelta(t, -1.0, mc.Precision()[0], 1e-12)
}

func TestMixtureComponentDistanceFloor(t *testing.T) {
	mc, err := NewMixtureComponent(nil, []float64{0}, []float64{1}, WithDistanceFloor(1e-10))
	require.NoError(t, err)
	got := mc.Score([]float64{100})
	assert.InDelta(t, math.Log(1e-10), got, 1e-9)

	// Without a floor the same point scores far lower.
	plain, _ := NewMixtureComponent(nil, []float64{0}, []float64{1})
	assert.Less(t, plain.Score([]float64{100}), got)
}

func TestMixtureComponentNaNBecomesLogZero(t *testing.T) {
	mc, err := NewMixtureComponent(nil, []float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, mathutil.LogZero, mc.Score([]float64{math.NaN(), 0}))
	assert.Equal(t, mathutil.LogZero, mc.Score([]float64{0}), "short feature")
}

func TestMixtureComponentTransforms(t *testing.T) {
	mc, err := NewMixtureComponent(nil, []float64{0}, []float64{1},
		WithMeanTransform(nil, mathutil.Vec{1}),
		WithVarianceTransform(mathutil.Mat{{4}}, nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, mc.TransformedMean())
	assert.InDelta(t, -1.0/8, mc.Precision()[0], 1e-12)
	assert.InDelta(t, -0.5*math.Log(8*math.Pi), mc.Score([]float64{1}), 1e-9)
	assert.Equal(t, []float64{0}, mc.Mean(), "original mean is kept")
}

func TestMixtureComponentErrors(t *testing.T) {
	_, err := NewMixtureComponent(nil, []float64{0, 1}, []float64{1})
	assert.ErrorIs(t, err, ErrDimMismatch)

	_, err = NewMixtureComponent(nil, []float64{0}, []float64{1}, WithMeanTransform(mathutil.Mat{{1, 0}}, nil))
	assert.ErrorIs(t, err, ErrBadTransform)

	_, err = NewMixtureComponent(nil, []float64{0}, []float64{1}, WithVarianceTransform(nil, mathutil.Vec{1, 2}))
	assert.ErrorIs(t, err, ErrBadTransform)
}

func newTwoModeMixture(t *testing.T, lm *mathutil.LogMath, id int64) *GaussianMixture {
	t.Helper()
	if lm == nil {
		lm = mathutil.Natural()
	}
	c0, err := NewMixtureComponent(lm, []float64{0}, []float64{1})
	require.NoError(t, err)
	c1, err := NewMixtureComponent(lm, []float64{5}, []float64{1})
	require.NoError(t, err)
	half := lm.LinearToLog(0.5)
	gm, err := NewGaussianMixture(lm, id, []float64{half, half}, []*MixtureComponent{c0, c1})
	require.NoError(t, err)
	return gm
}

func TestGaussianMixtureScore(t *testing.T) {
	gm := newTwoModeMixture(t, mathutil.Natural(), 7)

	lp0 := gm.CalculateScore([]float64{0.0})
	lp5 := gm.CalculateScore([]float64{5.0})
	lp25 := gm.CalculateScore([]float64{2.5})

	if math.IsNaN(lp0) || math.IsInf(lp0, 0) {
		t.Errorf("CalculateScore(0) = %f (not finite)", lp0)
	}
	// Symmetric mixture
	if math.Abs(lp0-lp5) > 1e-9 {
		t.Errorf("CalculateScore(0)=%f and CalculateScore(5)=%f should match", lp0, lp5)
	}
	if lp25 > lp0 {
		t.Errorf("CalculateScore(2.5)=%f > CalculateScore(0)=%f", lp25, lp0)
	}
}

func TestGaussianMixtureBoundedByBestComponent(t *testing.T) {
	gm := newTwoModeMixture(t, mathutil.Natural(), 1)
	for _, x := range []float64{-3, 0, 1.7, 2.5, 5, 9} {
		total := gm.CalculateScore([]float64{x})
		best := mathutil.LogZero
		for _, s := range gm.ComponentScores([]float64{x}) {
			best = math.Max(best, s)
		}
		assert.GreaterOrEqual(t, total, best, "x=%v", x)
		assert.False(t, math.IsNaN(total))
	}
}

func TestGaussianMixtureOtherBase(t *testing.T) {
	lm, err := mathutil.NewLogMath(10)
	require.NoError(t, err)
	gm := newTwoModeMixture(t, lm, 1)

	x := 1.0
	pdf := func(mu float64) float64 { return math.Exp(-0.5*(x-mu)*(x-mu)) / math.Sqrt(2*math.Pi) }
	want := math.Log10(0.5*pdf(0) + 0.5*pdf(5))
	assert.InDelta(t, want, gm.CalculateScore([]float64{x}), 1e-9)
}

func TestGaussianMixtureEdgeCases(t *testing.T) {
	_, err := NewGaussianMixture(nil, 1, []float64{0}, nil)
	assert.ErrorIs(t, err, ErrDimMismatch)

	empty, err := NewGaussianMixture(nil, 2, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, mathutil.LogZero, empty.CalculateScore([]float64{1}))
	assert.Equal(t, 0, empty.Dim())
}

func TestGaussianMixtureIdentity(t *testing.T) {
	a := newTwoModeMixture(t, nil, 1)
	b := newTwoModeMixture(t, nil, 2)
	assert.NotEqual(t, a.ID(), b.ID())
	// Identical content, distinct senones.
	set := map[Senone]bool{a: true, b: true}
	assert.Len(t, set, 2)
}

type countingSenone struct {
	id    int64
	score float64
	calls atomic.Int32
}

func (s *countingSenone) ID() int64 { return s.id }

func (s *countingSenone) Score(*Frame) float64 {
	s.calls.Add(1)
	return s.score
}

func TestScoreCachingSenone(t *testing.T) {
	inner := &countingSenone{id: 3, score: -4}
	s := NewScoreCachingSenone(inner)
	f1 := &Frame{Index: 0, Values: []float64{1}}
	f2 := &Frame{Index: 0, Values: []float64{2}}

	assert.Equal(t, -4.0, s.Score(f1))
	assert.Equal(t, -4.0, s.Score(f1))
	assert.EqualValues(t, 1, inner.calls.Load())

	// Same index, different frame: recomputed.
	s.Score(f2)
	assert.EqualValues(t, 2, inner.calls.Load())
	assert.EqualValues(t, 3, s.ID())
	assert.Same(t, inner, s.Unwrap())
}

func TestScoreCachingSenoneConcurrent(t *testing.T) {
	s := NewScoreCachingSenone(newTwoModeMixture(t, nil, 9))
	frames := []*Frame{{Values: []float64{0}}, {Values: []float64{5}}, {Values: []float64{2.5}}}
	want := make([]float64, len(frames))
	for i, f := range frames {
		want[i] = s.Unwrap().Score(f)
	}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				k := (i + g) % len(frames)
				if got := s.Score(frames[k]); got != want[k] {
					t.Errorf("Score(frame %d) = %v, want %v", k, got, want[k])
					return
				}
			}
		}()
	}
	wg.Wait()
}
