package dflat

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/lexicon"
	"github.com/ieee0824/dflat/linguist"
)

type fixture struct {
	model *acoustic.TiedStateModel
	dict  *lexicon.Dictionary
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	model, err := acoustic.NewRandomModel([]string{acoustic.SilenceName, "a", "i", "k"},
		acoustic.SynthOptions{Dim: 8, NumMix: 1}, acoustic.WithModelLogger(quietLogger()))
	require.NoError(t, err)
	dict := lexicon.NewDictionary(model.Units())
	for word, units := range map[string][]string{
		"か": {"k", "a"},
		"い": {"i"},
		"き": {"k", "i"},
	} {
		_, err := dict.Add(word, "", units)
		require.NoError(t, err)
	}
	return &fixture{model: model, dict: dict}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// speak samples frames for units spoken in order.
func (f *fixture) speak(t *testing.T, units ...string) []*acoustic.Frame {
	t.Helper()
	hmms := make([]*acoustic.HMM, len(units))
	for i, name := range units {
		u, ok := f.model.Units().Lookup(name)
		require.True(t, ok, name)
		h, err := f.model.LookupNearestHMM(u, acoustic.Undefined, true)
		require.NoError(t, err)
		require.NotNil(t, h, name)
		hmms[i] = h
	}
	frames, err := acoustic.SampleFrames(hmms, 2, 0.1, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	return frames
}

func (f *fixture) recognizer(t *testing.T, words ...string) *Recognizer {
	t.Helper()
	g, err := grammar.NewWordList(f.dict, words, true, f.model.LogMath())
	require.NoError(t, err)
	r, err := NewRecognizer(f.model, g, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecognize(t *testing.T) {
	f := newFixture(t)
	r := f.recognizer(t, "か", "い", "き")

	result, err := r.Recognize(context.Background(), f.speak(t, acoustic.SilenceName, "k", "a", "i"))
	require.NoError(t, err)
	assert.Equal(t, "かい", result.Text)
	assert.True(t, result.Final)
	require.Len(t, result.Words, 2)
	assert.Equal(t, 6, result.Words[0].StartFrame)
	assert.Equal(t, 18, result.Words[1].StartFrame)
}

func TestRecognizeTrailingSilence(t *testing.T) {
	f := newFixture(t)
	r := f.recognizer(t, "か", "い", "き")

	frames := f.speak(t, acoustic.SilenceName, "k", "a", "i", acoustic.SilenceName)
	result, err := r.Recognize(context.Background(), frames)
	require.NoError(t, err)
	assert.Equal(t, "かい", result.Text)
	assert.True(t, result.Final)
	require.Len(t, result.Words, 2)
	assert.Equal(t, 18, result.Words[1].StartFrame)
	assert.Equal(t, 23, result.Words[1].EndFrame, "trailing silence is not part of the word")

	graph, err := r.SearchGraph()
	require.NoError(t, err)
	silences := make(map[*grammar.Node]bool)
	graph.Walk(func(s *linguist.State) bool {
		if s.Kind() == linguist.KindGrammar && !s.GrammarNode().IsEmpty() && s.GrammarNode().Word().IsFiller() {
			silences[s.GrammarNode()] = true
		}
		return true
	})
	assert.Len(t, silences, 2, "leading and trailing silence words")
}

func TestRecognizeFile(t *testing.T) {
	f := newFixture(t)
	r := f.recognizer(t, "か", "い", "き")

	path := filepath.Join(t.TempDir(), "frames.txt")
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, acoustic.WriteFrames(out, f.speak(t, acoustic.SilenceName, "k", "i")))
	require.NoError(t, out.Close())

	result, err := r.RecognizeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "き", result.Text)

	_, err = r.RecognizeFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSetGrammarRecompiles(t *testing.T) {
	f := newFixture(t)
	r := f.recognizer(t, "か")
	before, err := r.SearchGraph()
	require.NoError(t, err)
	again, err := r.SearchGraph()
	require.NoError(t, err)
	assert.Same(t, before, again, "unchanged grammar keeps its graph")

	g, err := grammar.NewWordList(f.dict, []string{"い"}, false, f.model.LogMath())
	require.NoError(t, err)
	r.SetGrammar(g)
	after, err := r.SearchGraph()
	require.NoError(t, err)
	assert.NotEqual(t, before.ID(), after.ID())

	result, err := r.Recognize(context.Background(), f.speak(t, acoustic.SilenceName, "i"))
	require.NoError(t, err)
	assert.Equal(t, "い", result.Text)
}

func TestAlign(t *testing.T) {
	f := newFixture(t)
	r := f.recognizer(t, "か")

	result, err := r.Align(context.Background(), []string{"き", "か"}, f.speak(t, "k", "i", "k", "a"))
	require.NoError(t, err)
	assert.True(t, result.Final)
	require.Len(t, result.Words, 2)
	assert.Equal(t, "き", result.Words[0].Text)
	assert.Equal(t, 0, result.Words[0].StartFrame)
	assert.Equal(t, 12, result.Words[1].StartFrame)
	assert.Equal(t, 23, result.Words[1].EndFrame)

	_, err = r.Align(context.Background(), nil, nil)
	assert.Error(t, err)
	_, err = r.Align(context.Background(), []string{"大阪"}, nil)
	assert.ErrorIs(t, err, lexicon.ErrUnknownWord)
	_, err = r.Align(context.Background(), []string{lexicon.UnknownSpelling}, nil)
	assert.Error(t, err)
}

func TestCloseStopsRecognition(t *testing.T) {
	f := newFixture(t)
	r := f.recognizer(t, "か")
	require.NoError(t, r.Close())
	_, err := r.Recognize(context.Background(), f.speak(t, acoustic.SilenceName))
	assert.ErrorIs(t, err, linguist.ErrNotAllocated)
}

func TestNewRecognizerValidates(t *testing.T) {
	f := newFixture(t)
	g, err := grammar.NewWordList(f.dict, []string{"か"}, false, f.model.LogMath())
	require.NoError(t, err)

	cfg := linguist.DefaultConfig()
	cfg.LanguageWeight = -1
	_, err = NewRecognizer(f.model, g, WithLogger(quietLogger()), WithLinguistConfig(cfg))
	assert.Error(t, err)
}
