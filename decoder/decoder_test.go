package decoder

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/internal/observe"
	"github.com/ieee0824/dflat/lexicon"
	"github.com/ieee0824/dflat/linguist"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

// buildTinyModel creates a minimal model for testing:
// Vocabulary: "あ" (units: [a]), "い" (units: [i])
// Each unit has three 1D single-Gaussian states with distinct means:
// SIL at -5, a at 0, i at 5.
func buildTinyModel(t *testing.T) (*acoustic.TiedStateModel, *lexicon.Dictionary) {
	t.Helper()
	lm := mathutil.Natural()
	units := acoustic.NewUnitManager()
	hmms := acoustic.NewHMMManager()
	senones := acoustic.NewPool[acoustic.Senone]("senones")

	id := 0
	for _, u := range []struct {
		name string
		mean float64
	}{{acoustic.SilenceName, -5}, {"a", 0}, {"i", 5}} {
		unit := units.Get(u.name, u.name == acoustic.SilenceName)
		states := make([]acoustic.Senone, acoustic.NumEmittingStates)
		for k := range states {
			c, err := acoustic.NewMixtureComponent(lm, []float64{u.mean}, []float64{0.5})
			require.NoError(t, err)
			gm, err := acoustic.NewGaussianMixture(lm, int64(id), []float64{mathutil.LogOne}, []*acoustic.MixtureComponent{c})
			require.NoError(t, err)
			require.NoError(t, senones.Put(id, gm))
			states[k] = gm
			id++
		}
		h, err := acoustic.NewHMM(unit, acoustic.Undefined, states, acoustic.LeftToRight(acoustic.NumEmittingStates, 0.5, lm))
		require.NoError(t, err)
		require.NoError(t, hmms.Put(h))
	}
	model := acoustic.NewTiedStateModel(units, senones, hmms, acoustic.WithModelLogger(quietLogger()))

	dict := lexicon.NewDictionary(units)
	_, err := dict.Add("あ", "ア", []string{"a"})
	require.NoError(t, err)
	_, err = dict.Add("い", "イ", []string{"i"})
	require.NoError(t, err)
	return model, dict
}

func wordListGraph(t *testing.T, model *acoustic.TiedStateModel, dict *lexicon.Dictionary, words ...string) *linguist.SearchGraph {
	t.Helper()
	g, err := grammar.NewWordList(dict, words, true, model.LogMath())
	require.NoError(t, err)
	l, err := linguist.New(model, g, linguist.WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, l.Allocate())
	return l.SearchGraph()
}

// frames returns n frames holding v for each (v, n) pair.
func frames(pairs ...float64) []*acoustic.Frame {
	var out []*acoustic.Frame
	for i := 0; i+1 < len(pairs); i += 2 {
		for range int(pairs[i+1]) {
			out = append(out, &acoustic.Frame{Index: len(out), Values: []float64{pairs[i]}})
		}
	}
	return out
}

func TestDecode_TwoWords(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ", "い")

	// Silence, then "あ", then "い".
	result, err := Decode(context.Background(), g, frames(-5, 3, 0.1, 4, 4.9, 4), DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "あい", result.Text)
	assert.True(t, result.Final)
	assert.Equal(t, []Word{
		{Text: "あ", StartFrame: 3, EndFrame: 6},
		{Text: "い", StartFrame: 7, EndFrame: 10},
	}, result.Words)
	assert.False(t, math.IsNaN(result.LogScore) || math.IsInf(result.LogScore, 0), "LogScore = %f", result.LogScore)
}

func TestDecode_SingleWord(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ", "い")

	result, err := Decode(context.Background(), g, frames(-5, 3, 5.1, 6), DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "い", result.Text)
	assert.True(t, result.Final)
}

func TestDecode_EmptyFeatures(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ")

	result, err := Decode(context.Background(), g, nil, DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.Empty(t, result.Words)
}

func TestDecode_NoFinalState(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ")

	// Two frames are too few to leave a three state HMM.
	result, err := Decode(context.Background(), g, frames(-5, 3, 0.1, 2), DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.False(t, result.Final)
	assert.Equal(t, "あ", result.Text)
	assert.Equal(t, []Word{{Text: "あ", StartFrame: 3, EndFrame: 4}}, result.Words)
}

func TestDecode_ForcedAlignment(t *testing.T) {
	model, dict := buildTinyModel(t)
	a, err := dict.MustLookup("あ")
	require.NoError(t, err)
	i, err := dict.MustLookup("い")
	require.NoError(t, err)
	prons := []*lexicon.Pronunciation{i.Pronunciations()[0], a.Pronunciations()[0], i.Pronunciations()[0]}
	g, err := linguist.BuildUnitSequence(model, prons, linguist.WithLogger(quietLogger()))
	require.NoError(t, err)

	result, err := Decode(context.Background(), g, frames(5, 4, 0, 5, 5, 3), DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.True(t, result.Final)
	assert.Equal(t, "いあい", result.Text)
	assert.Equal(t, []Word{
		{Text: "い", StartFrame: 0, EndFrame: 3},
		{Text: "あ", StartFrame: 4, EndFrame: 8},
		{Text: "い", StartFrame: 9, EndFrame: 11},
	}, result.Words)
}

func TestDecode_TrailingSilence(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ", "い")

	result, err := Decode(context.Background(), g, frames(-5, 3, 0.1, 4, 4.9, 4, -5, 5), DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.True(t, result.Final)
	assert.Equal(t, "あい", result.Text)
	assert.Equal(t, []Word{
		{Text: "あ", StartFrame: 3, EndFrame: 6},
		{Text: "い", StartFrame: 7, EndFrame: 10},
	}, result.Words, "the silence ends the last word")
}

// fanInGraph compiles a grammar where n empty nodes lead into the word あ.
// Branch i costs -i, listed cheapest first.
func fanInGraph(t *testing.T, model *acoustic.TiedStateModel, dict *lexicon.Dictionary, n int) *linguist.SearchGraph {
	t.Helper()
	b := grammar.NewBuilder(dict, model.LogMath())
	start, err := b.AddNode("", false)
	require.NoError(t, err)
	word, err := b.AddNode("あ", false)
	require.NoError(t, err)
	fin, err := b.AddNode("", true)
	require.NoError(t, err)
	require.NoError(t, b.AddArc(word, fin, mathutil.LogOne))
	for i := 1; i <= n; i++ {
		e, err := b.AddNode("", false)
		require.NoError(t, err)
		require.NoError(t, b.AddArc(start, e, -float64(i)))
		require.NoError(t, b.AddArc(e, word, mathutil.LogOne))
	}
	g, err := b.Build(start)
	require.NoError(t, err)
	l, err := linguist.New(model, g, linguist.WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, l.Allocate())
	return l.SearchGraph()
}

func TestDecode_SharedStateKeepsBestOfManyPaths(t *testing.T) {
	model, dict := buildTinyModel(t)
	decode := func(g *linguist.SearchGraph) *Result {
		t.Helper()
		result, err := Decode(context.Background(), g, frames(0, 3), DefaultConfig(), WithLogger(quietLogger()))
		require.NoError(t, err)
		require.True(t, result.Final)
		require.Equal(t, "あ", result.Text)
		return result
	}
	one := decode(fanInGraph(t, model, dict, 1))
	many := decode(fanInGraph(t, model, dict, 40))
	assert.InDelta(t, one.LogScore, many.LogScore, 1e-9)
}

func TestDecode_PositiveCycleTerminates(t *testing.T) {
	model, dict := buildTinyModel(t)
	b := grammar.NewBuilder(dict, model.LogMath())
	start, _ := b.AddNode("", false)
	x, _ := b.AddNode("", false)
	y, _ := b.AddNode("", false)
	word, err := b.AddNode("あ", false)
	require.NoError(t, err)
	fin, _ := b.AddNode("", true)
	require.NoError(t, b.AddArc(start, x, -1))
	require.NoError(t, b.AddArc(x, y, -1))
	require.NoError(t, b.AddArc(y, x, 2)) // the x-y cycle gains 1
	require.NoError(t, b.AddArc(y, word, mathutil.LogOne))
	require.NoError(t, b.AddArc(word, fin, mathutil.LogOne))
	g, err := b.Build(start)
	require.NoError(t, err)
	l, err := linguist.New(model, g, linguist.WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, l.Allocate())

	result, err := Decode(context.Background(), l.SearchGraph(), frames(0, 3), DefaultConfig(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "あ", result.Text, "a positive cycle terminates")
}

func TestDecode_Canceled(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Decode(ctx, g, frames(-5, 3, 0, 3), DefaultConfig(), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecode_RejectsConfig(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ")

	_, err := Decode(context.Background(), g, frames(0, 3), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beam_width")
	assert.Contains(t, err.Error(), "max_active_tokens")
	assert.Contains(t, err.Error(), "workers")
}

func TestDecode_NarrowSearchStillDecodes(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ", "い")
	cfg := Config{BeamWidth: 50, MaxActiveTokens: 4, Workers: 1}

	result, err := Decode(context.Background(), g, frames(-5, 3, 0.1, 4, 4.9, 4), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, "あい", result.Text)
}

func TestDecode_Metrics(t *testing.T) {
	model, dict := buildTinyModel(t)
	g := wordListGraph(t, model, dict, "あ")
	m, reader := testMetrics(t)

	_, err := Decode(context.Background(), g, frames(-5, 3, 0, 3), DefaultConfig(), WithLogger(quietLogger()), WithMetrics(m))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "dflat.decoder.frames" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(6), sum.DataPoints[0].Value)
			found = true
		}
	}
	assert.True(t, found, "decoder frames not recorded")
}

func TestPruneTokens(t *testing.T) {
	src := []*token{{score: 0}, {score: -5}, {score: -50}, {score: -1}, {score: mathutil.LogZero}}
	got := pruneTokens(src, nil, 10, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 0.0, got[0].score)
	assert.Equal(t, -1.0, got[1].score)

	got = pruneTokens(src, nil, 10, 10)
	assert.Len(t, got, 3, "beam drops -50 and log zero")

	assert.Empty(t, pruneTokens(nil, nil, 10, 10))
}

func TestWordHistory(t *testing.T) {
	var h *wordHistoryNode
	words, starts := h.toSlice()
	assert.Nil(t, words)
	assert.Nil(t, starts)

	h = h.push("a", 0).push("b", 3)
	shared := h.push("c", 5)
	other := h.push("d", 6)
	words, starts = shared.toSlice()
	assert.Equal(t, []string{"a", "b", "c"}, words)
	assert.Equal(t, []int{0, 3, 5}, starts)
	words, _ = other.toSlice()
	assert.Equal(t, []string{"a", "b", "d"}, words)
}
