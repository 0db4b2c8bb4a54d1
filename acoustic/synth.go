package acoustic

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ieee0824/dflat/internal/mathutil"
)

// NumEmittingStates is the number of emitting states per synthetic phone HMM.
const NumEmittingStates = 3

// SynthOptions describes a randomly initialised model.
type SynthOptions struct {
	Dim    int
	NumMix int
	// Lazy builds HMMs on demand through a context decision tree instead
	// of registering one context-independent HMM per phone.
	Lazy bool
	Rand *rand.Rand
}

// NewRandomModel creates a model with NumEmittingStates senones per phone,
// each a mixture of NumMix unit-variance Gaussians with random means.
// The first phone should be the silence unit.
func NewRandomModel(phones []string, so SynthOptions, opts ...ModelOption) (*TiedStateModel, error) {
	if so.Dim <= 0 || so.NumMix <= 0 {
		return nil, fmt.Errorf("acoustic: bad synthetic model size dim=%d mix=%d", so.Dim, so.NumMix)
	}
	rng := so.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	m := NewTiedStateModel(NewUnitManager(), NewPool[Senone]("senones"), nil, opts...)
	lm := m.lm

	logW := lm.LinearToLog(1.0 / float64(so.NumMix))
	for i := 0; i < len(phones)*NumEmittingStates; i++ {
		comps := make([]*MixtureComponent, so.NumMix)
		weights := make([]float64, so.NumMix)
		for k := range comps {
			mean := make([]float64, so.Dim)
			for d := range mean {
				mean[d] = rng.NormFloat64()
			}
			c, err := NewMixtureComponent(lm, mean, mathutil.NewVecFill(so.Dim, 1.0))
			if err != nil {
				return nil, err
			}
			comps[k] = c
			weights[k] = logW
		}
		gm, err := NewGaussianMixture(lm, int64(i), weights, comps)
		if err != nil {
			return nil, err
		}
		if err := m.senones.Put(i, NewScoreCachingSenone(gm)); err != nil {
			return nil, err
		}
	}
	m.senones.SetFeature(NumSenones, m.senones.Size())
	m.senones.SetFeature(NumGaussiansPerState, so.NumMix)
	m.senones.SetFeature(NumStreams, 1)

	tmat := LeftToRight(NumEmittingStates, 0.5, lm)
	units := make([]*Unit, len(phones))
	for i, name := range phones {
		units[i] = m.units.Get(name, name == SilenceName || IsFillerPhone(name))
	}

	if so.Lazy {
		symbols := make(map[string]int, len(phones))
		byPhone := make([]EventMap, len(phones))
		for i, name := range phones {
			symbols[name] = i
			byClass := make([]EventMap, NumEmittingStates)
			for s := range byClass {
				byClass[s] = ConstantEventMap{Value: i*NumEmittingStates + s}
			}
			byPhone[i] = &TableEventMap{Key: PdfClassKey, Table: byClass}
		}
		tree := &TableEventMap{Key: 1, Table: byPhone}
		m.source = NewLazyHMMManager(tree, symbols, m.senones, FixedTopology{TMat: tmat},
			WithLazyLogger(m.logger))
		return m, nil
	}

	hmms := NewHMMManager()
	for i, u := range units {
		seq := make([]Senone, NumEmittingStates)
		for s := range seq {
			seq[s] = m.senones.MustGet(i*NumEmittingStates + s)
		}
		h, err := NewHMM(u, Undefined, seq, tmat)
		if err != nil {
			return nil, err
		}
		if err := hmms.Put(h); err != nil {
			return nil, err
		}
	}
	m.source = hmms
	return m, nil
}

// SampleFrames draws framesPerState frames from each emitting state of each
// HMM in turn. Each frame is the state's first mixture component mean plus
// Gaussian noise scaled by noise standard deviations. Senones that are not
// Gaussian mixtures are an error.
func SampleFrames(hmms []*HMM, framesPerState int, noise float64, rng *rand.Rand) ([]*Frame, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	var frames []*Frame
	for _, h := range hmms {
		for i, s := range h.Senones() {
			gm, ok := unwrapMixture(s)
			if !ok {
				return nil, fmt.Errorf("acoustic: %s state %d is not a gaussian mixture", h, i)
			}
			c := gm.Components()[0]
			for range framesPerState {
				values := make([]float64, c.Dim())
				for d := range values {
					values[d] = c.Mean()[d] + noise*math.Sqrt(c.Variance()[d])*rng.NormFloat64()
				}
				frames = append(frames, &Frame{Index: len(frames), Values: values})
			}
		}
	}
	return frames, nil
}
