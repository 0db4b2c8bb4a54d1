package acoustic

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ieee0824/dflat/internal/mathutil"
)

// ErrInconsistentModel is returned when loaded pools disagree with each other.
var ErrInconsistentModel = errors.New("acoustic: inconsistent model")

// Config holds the scoring parameters applied when a model is loaded.
type Config struct {
	VarianceFloor float64 `yaml:"variance_floor"`
	DistanceFloor float64 `yaml:"distance_floor"`
	ScoreCaching  bool    `yaml:"score_caching"`
}

// DefaultConfig returns the default scoring parameters.
func DefaultConfig() Config {
	return Config{
		VarianceFloor: DefaultVarianceFloor,
		DistanceFloor: DefaultDistanceFloor,
		ScoreCaching:  true,
	}
}

// TiedStateModel is an acoustic model whose HMM states share senones.
type TiedStateModel struct {
	name    string
	lm      *mathutil.LogMath
	units   *UnitManager
	senones *Pool[Senone]
	source  HMMSource
	logger  *slog.Logger

	mu        sync.Mutex
	allocated bool
}

// ModelOption configures a TiedStateModel.
type ModelOption func(*TiedStateModel)

// WithModelName names the model in logs.
func WithModelName(name string) ModelOption {
	return func(m *TiedStateModel) { m.name = name }
}

// WithModelLogger sets the logger.
func WithModelLogger(l *slog.Logger) ModelOption {
	return func(m *TiedStateModel) { m.logger = l }
}

// WithModelLogMath sets the log base scores are expressed in.
func WithModelLogMath(lm *mathutil.LogMath) ModelOption {
	return func(m *TiedStateModel) { m.lm = lm }
}

// NewTiedStateModel creates a model over already populated collaborators.
// source is usually an *HMMManager or a *LazyHMMManager.
func NewTiedStateModel(units *UnitManager, senones *Pool[Senone], source HMMSource, opts ...ModelOption) *TiedStateModel {
	m := &TiedStateModel{
		name:    "acoustic",
		lm:      mathutil.Natural(),
		units:   units,
		senones: senones,
		source:  source,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Name returns the model name.
func (m *TiedStateModel) Name() string { return m.name }

// LogMath returns the log base of the model's scores.
func (m *TiedStateModel) LogMath() *mathutil.LogMath { return m.lm }

// Units returns the unit manager.
func (m *TiedStateModel) Units() *UnitManager { return m.units }

// Senones returns the senone pool.
func (m *TiedStateModel) Senones() *Pool[Senone] { return m.senones }

// CIUnits returns the context-independent units.
func (m *TiedStateModel) CIUnits() []*Unit { return m.units.CIUnits() }

// Allocate checks the model's pools for consistency. It is idempotent.
func (m *TiedStateModel) Allocate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocated {
		return nil
	}
	if want := m.senones.Feature(NumSenones, m.senones.Size()); want != m.senones.Size() {
		return fmt.Errorf("%w: %d senones declared, %d loaded", ErrInconsistentModel, want, m.senones.Size())
	}
	m.allocated = true
	m.logger.Info("allocated acoustic model",
		"name", m.name,
		"senones", m.senones.Size(),
		"units", len(m.units.CIUnits()),
	)
	return nil
}

// Deallocate releases the model. A later Allocate re-checks it.
func (m *TiedStateModel) Deallocate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocated = false
}

// LookupNearestHMM returns the HMM for unit at pos. With allowFallback a
// missing HMM is looked up as the same unit at Undefined, then the base
// unit at pos, then the base unit at Undefined. A nil HMM with a nil error
// means nothing matched.
func (m *TiedStateModel) LookupNearestHMM(unit *Unit, pos Position, allowFallback bool) (*HMM, error) {
	h, err := m.source.Lookup(pos, unit)
	if err != nil || h != nil || !allowFallback {
		return h, err
	}
	candidates := []struct {
		unit *Unit
		pos  Position
	}{
		{unit, Undefined},
		{unit.Base(), pos},
		{unit.Base(), Undefined},
	}
	for _, c := range candidates {
		if c.unit == unit && c.pos == pos {
			continue
		}
		if h, err = m.source.Lookup(c.pos, c.unit); err != nil || h != nil {
			return h, err
		}
	}
	return nil, nil
}

// HMMs returns every HMM registered in the model's source.
func (m *TiedStateModel) HMMs() []*HMM {
	if l, ok := m.source.(interface{ HMMs() []*HMM }); ok {
		return l.HMMs()
	}
	return nil
}

type serializedModel struct {
	LogBase              float64
	NumGaussiansPerState int
	Units                []serializedUnit
	Senones              []serializedSenone
	HMMs                 []serializedHMM
}

type serializedUnit struct {
	Name   string
	Filler bool
}

type serializedSenone struct {
	ID         int64
	LogWeights []float64
	Components []serializedGaussian
}

type serializedGaussian struct {
	Mean     []float64
	Variance []float64
}

type serializedHMM struct {
	Unit     string
	Position int
	Senones  []int // senone pool ids
	TMat     [][]float64
}

// Save serializes the model using gob encoding. Only GaussianMixture
// senones, optionally wrapped in a ScoreCachingSenone, can be saved.
func (m *TiedStateModel) Save(w io.Writer) error {
	sm := serializedModel{
		LogBase:              m.lm.Base(),
		NumGaussiansPerState: m.senones.Feature(NumGaussiansPerState, 0),
	}
	for _, u := range m.units.CIUnits() {
		sm.Units = append(sm.Units, serializedUnit{Name: u.Name(), Filler: u.IsFiller()})
	}

	poolID := make(map[Senone]int, m.senones.Size())
	for id, s := range m.senones.All() {
		poolID[s] = id
		gm, ok := unwrapMixture(s)
		if !ok {
			return fmt.Errorf("acoustic: senone %d is %T, not a gaussian mixture", id, s)
		}
		ss := serializedSenone{ID: gm.ID(), LogWeights: gm.LogWeights()}
		for _, c := range gm.Components() {
			ss.Components = append(ss.Components, serializedGaussian{Mean: c.Mean(), Variance: c.Variance()})
		}
		sm.Senones = append(sm.Senones, ss)
	}

	for _, h := range m.HMMs() {
		sh := serializedHMM{Unit: h.Unit().String(), Position: int(h.Position()), TMat: h.TransitionMatrix()}
		for _, s := range h.Senones() {
			id, ok := poolID[s]
			if !ok {
				return fmt.Errorf("acoustic: %s uses senone %d outside the pool", h, s.ID())
			}
			sh.Senones = append(sh.Senones, id)
		}
		sm.HMMs = append(sm.HMMs, sh)
	}
	return gob.NewEncoder(w).Encode(sm)
}

func unwrapMixture(s Senone) (*GaussianMixture, bool) {
	if c, ok := s.(*ScoreCachingSenone); ok {
		s = c.Unwrap()
	}
	gm, ok := s.(*GaussianMixture)
	return gm, ok
}

// Load deserializes a model written by Save. Every inconsistency is an
// error; no partially loaded model is returned.
func Load(r io.Reader, cfg Config, opts ...ModelOption) (*TiedStateModel, error) {
	var sm serializedModel
	if err := gob.NewDecoder(r).Decode(&sm); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	lm, err := mathutil.NewLogMath(sm.LogBase)
	if err != nil {
		return nil, err
	}

	units := NewUnitManager()
	for _, su := range sm.Units {
		units.Get(su.Name, su.Filler)
	}

	senones := NewPool[Senone]("senones")
	for id, ss := range sm.Senones {
		if sm.NumGaussiansPerState > 0 && len(ss.Components) != sm.NumGaussiansPerState {
			return nil, fmt.Errorf("%w: senone %d has %d gaussians, want %d",
				ErrInconsistentModel, id, len(ss.Components), sm.NumGaussiansPerState)
		}
		comps := make([]*MixtureComponent, len(ss.Components))
		for i, sg := range ss.Components {
			if comps[i], err = NewMixtureComponent(lm, sg.Mean, sg.Variance,
				WithVarianceFloor(cfg.VarianceFloor),
				WithDistanceFloor(cfg.DistanceFloor),
			); err != nil {
				return nil, fmt.Errorf("senone %d component %d: %w", id, i, err)
			}
		}
		gm, err := NewGaussianMixture(lm, ss.ID, ss.LogWeights, comps)
		if err != nil {
			return nil, fmt.Errorf("senone %d: %w", id, err)
		}
		var s Senone = gm
		if cfg.ScoreCaching {
			s = NewScoreCachingSenone(gm)
		}
		if err := senones.Put(id, s); err != nil {
			return nil, err
		}
	}
	senones.SetFeature(NumSenones, len(sm.Senones))
	senones.SetFeature(NumGaussiansPerState, sm.NumGaussiansPerState)
	senones.SetFeature(NumStreams, 1)

	hmms := NewHMMManager()
	for _, sh := range sm.HMMs {
		unit, err := units.Parse(sh.Unit)
		if err != nil {
			return nil, err
		}
		seq := make([]Senone, len(sh.Senones))
		for i, id := range sh.Senones {
			if seq[i], err = senones.Get(id); err != nil {
				return nil, fmt.Errorf("hmm %s: %w", sh.Unit, err)
			}
		}
		h, err := NewHMM(unit, Position(sh.Position), seq, sh.TMat)
		if err != nil {
			return nil, err
		}
		if err := hmms.Put(h); err != nil {
			return nil, err
		}
	}

	opts = append([]ModelOption{WithModelLogMath(lm)}, opts...)
	return NewTiedStateModel(units, senones, hmms, opts...), nil
}
