package linguist

import (
	"log/slog"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/internal/observe"
	"github.com/ieee0824/dflat/lexicon"
)

// AcousticModel is the part of an acoustic model a search graph is built
// from. *acoustic.TiedStateModel implements it.
type AcousticModel interface {
	// LookupNearestHMM returns the HMM for unit at pos, falling back to
	// less specific HMMs when allowFallback is set. A nil HMM with a nil
	// error means nothing matched.
	LookupNearestHMM(unit *acoustic.Unit, pos acoustic.Position, allowFallback bool) (*acoustic.HMM, error)
	CIUnits() []*acoustic.Unit
	Units() *acoustic.UnitManager
	LogMath() *mathutil.LogMath
	Allocate() error
	Deallocate()
}

// Option configures a Linguist or an eagerly built graph.
type Option func(*options)

type options struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *observe.Metrics
	lm        *mathutil.LogMath
	phoneLoop AcousticModel
}

// WithConfig sets the graph probabilities.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogMath overrides the log base probabilities are converted to. It
// defaults to the acoustic model's.
func WithLogMath(lm *mathutil.LogMath) Option {
	return func(o *options) { o.lm = lm }
}

// WithPhoneLoopModel sets the model the out-of-grammar phone loop is built
// from. It defaults to the main acoustic model.
func WithPhoneLoopModel(m AcousticModel) Option {
	return func(o *options) { o.phoneLoop = m }
}

func newOptions(model AcousticModel, opts []Option) options {
	o := options{cfg: DefaultConfig()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.lm == nil {
		o.lm = model.LogMath()
	}
	if o.lm == nil {
		o.lm = mathutil.Natural()
	}
	if o.phoneLoop == nil {
		o.phoneLoop = model
	}
	return o
}

// logProbs are the configured probabilities in the graph's log base.
type logProbs struct {
	wordInsertion    float64
	silenceInsertion float64
	unitInsertion    float64
	fillerInsertion  float64
	languageWeight   float64
	outOfGrammar     float64
	phoneInsertion   float64
}

func (o *options) logProbs() logProbs {
	lm := o.lm
	return logProbs{
		wordInsertion:    lm.LinearToLog(o.cfg.WordInsertionProbability),
		silenceInsertion: lm.LinearToLog(o.cfg.SilenceInsertionProbability),
		unitInsertion:    lm.LinearToLog(o.cfg.UnitInsertionProbability),
		fillerInsertion:  lm.LinearToLog(o.cfg.FillerInsertionProbability),
		languageWeight:   o.cfg.LanguageWeight,
		outOfGrammar:     lm.LinearToLog(o.cfg.OutOfGrammarProbability),
		phoneInsertion:   lm.LinearToLog(o.cfg.PhoneInsertionProbability),
	}
}

// unitInsertionFor returns the insertion probability for entering unit u.
func (p logProbs) unitInsertionFor(u *acoustic.Unit) float64 {
	switch {
	case u.IsSilence():
		return p.silenceInsertion
	case u.IsFiller():
		return p.fillerInsertion
	}
	return p.unitInsertion
}

// wordInsertionFor returns the insertion probability for entering w.
func (p logProbs) wordInsertionFor(w *lexicon.Word) float64 {
	if w.IsFiller() {
		return mathutil.LogOne
	}
	return p.wordInsertion
}
