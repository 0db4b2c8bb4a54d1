// Package dflat recognizes speech against a grammar by expanding it into a
// context-dependent search graph on demand and decoding feature frames over
// that graph.
package dflat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/decoder"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/internal/observe"
	"github.com/ieee0824/dflat/lexicon"
	"github.com/ieee0824/dflat/linguist"
)

// Recognizer is the top-level speech recognizer. It is safe for concurrent
// use; recognitions share one search graph.
type Recognizer struct {
	model   linguist.AcousticModel
	ling    *linguist.Linguist
	lingCfg linguist.Config
	decCfg  decoder.Config
	logger  *slog.Logger
	metrics *observe.Metrics
	lm      *mathutil.LogMath

	mu sync.Mutex // serialises grammar changes with graph lookups
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithLinguistConfig sets search graph parameters.
func WithLinguistConfig(cfg linguist.Config) Option {
	return func(r *Recognizer) {
		r.lingCfg = cfg
	}
}

// WithDecoderConfig sets custom decoder parameters.
func WithDecoderConfig(cfg decoder.Config) Option {
	return func(r *Recognizer) {
		r.decCfg = cfg
	}
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recognizer) {
		r.logger = l
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recognizer) {
		r.metrics = m
	}
}

// WithLogMath sets the log base of graph probabilities. It should match the
// acoustic model's.
func WithLogMath(lm *mathutil.LogMath) Option {
	return func(r *Recognizer) {
		r.lm = lm
	}
}

// NewRecognizer allocates model and compiles g.
func NewRecognizer(model linguist.AcousticModel, g *grammar.Grammar, opts ...Option) (*Recognizer, error) {
	r := &Recognizer{
		model:   model,
		lingCfg: linguist.DefaultConfig(),
		decCfg:  decoder.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if err := r.decCfg.Validate(); err != nil {
		return nil, err
	}

	ling, err := linguist.New(model, g, r.linguistOptions()...)
	if err != nil {
		return nil, err
	}
	if err := ling.Allocate(); err != nil {
		return nil, fmt.Errorf("allocate linguist: %w", err)
	}
	r.ling = ling
	return r, nil
}

func (r *Recognizer) linguistOptions() []linguist.Option {
	opts := []linguist.Option{
		linguist.WithConfig(r.lingCfg),
		linguist.WithLogger(r.logger),
		linguist.WithMetrics(r.metrics),
	}
	if r.lm != nil {
		opts = append(opts, linguist.WithLogMath(r.lm))
	}
	return opts
}

func (r *Recognizer) decoderOptions() []decoder.Option {
	return []decoder.Option{decoder.WithLogger(r.logger), decoder.WithMetrics(r.metrics)}
}

// SetGrammar replaces the grammar. The next recognition compiles it.
func (r *Recognizer) SetGrammar(g *grammar.Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ling.SetGrammar(g)
}

// SearchGraph returns the search graph the next recognition decodes over,
// compiling the grammar first if it changed.
func (r *Recognizer) SearchGraph() (*linguist.SearchGraph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ling.StartRecognition(); err != nil {
		return nil, err
	}
	defer r.ling.StopRecognition()
	return r.ling.SearchGraph(), nil
}

// Recognize decodes frames against the current grammar.
func (r *Recognizer) Recognize(ctx context.Context, frames []*acoustic.Frame) (*decoder.Result, error) {
	g, err := r.SearchGraph()
	if err != nil {
		return nil, err
	}
	return decoder.Decode(ctx, g, frames, r.decCfg, r.decoderOptions()...)
}

// RecognizeFile decodes a text feature file written by acoustic.WriteFrames.
func (r *Recognizer) RecognizeFile(ctx context.Context, path string) (*decoder.Result, error) {
	frames, err := acoustic.ReadFramesFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return r.Recognize(ctx, frames)
}

// Align force-aligns frames to words, spoken in order with the first
// pronunciation of each. The result's words carry the frame boundaries.
func (r *Recognizer) Align(ctx context.Context, words []string, frames []*acoustic.Frame) (*decoder.Result, error) {
	if len(words) == 0 {
		return nil, errors.New("align: no words")
	}
	dict := r.ling.Grammar().Dictionary()
	prons := make([]*lexicon.Pronunciation, 0, len(words))
	for _, spelling := range words {
		w, err := dict.MustLookup(spelling)
		if err != nil {
			return nil, fmt.Errorf("align: %w", err)
		}
		if len(w.Pronunciations()) == 0 {
			return nil, fmt.Errorf("align: %q has no pronunciation", spelling)
		}
		prons = append(prons, w.Pronunciations()[0])
	}
	g, err := linguist.BuildUnitSequence(r.model, prons, r.linguistOptions()...)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	return decoder.Decode(ctx, g, frames, r.decCfg, r.decoderOptions()...)
}

// Close releases the acoustic model.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ling.Deallocate()
	return nil
}
