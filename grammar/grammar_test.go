package grammar

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/lexicon"
)

func testDict(t *testing.T) *lexicon.Dictionary {
	t.Helper()
	d := lexicon.NewDictionary(acoustic.NewUnitManager())
	for word, phones := range map[string]string{
		"東京":  "t o u k y o u",
		"タワー": "t a w a long",
		"行く":  "i k u",
	} {
		_, err := d.Add(word, "", strings.Fields(phones))
		require.NoError(t, err)
	}
	return d
}

func TestBuilder(t *testing.T) {
	d := testDict(t)
	b := NewBuilder(d, nil)
	start, err := b.AddNode("", false)
	require.NoError(t, err)
	tokyo, err := b.AddNode("東京", true)
	require.NoError(t, err)
	require.NoError(t, b.AddArc(start, tokyo, -1))

	_, err = b.AddNode("大阪", false)
	assert.ErrorIs(t, err, lexicon.ErrUnknownWord)

	other := NewBuilder(d, nil)
	foreign, _ := other.AddNode("", false)
	assert.ErrorIs(t, b.AddArc(start, foreign, 0), ErrForeignNode)
	_, err = b.Build(foreign)
	assert.ErrorIs(t, err, ErrForeignNode)
	_, err = b.Build(nil)
	assert.ErrorIs(t, err, ErrNoInitialNode)

	g, err := b.Build(start)
	require.NoError(t, err)
	assert.Same(t, start, g.InitialNode())
	assert.True(t, start.IsEmpty())
	assert.Equal(t, "東京", tokyo.Word().Spelling())
	assert.True(t, tokyo.IsFinal())
	assert.Equal(t, []Arc{{Node: tokyo, LogProbability: -1}}, start.Successors())
	assert.Len(t, g.Words(), 1)
}

func TestNewWordList(t *testing.T) {
	d := testDict(t)
	words := []string{"東京", "タワー", "行く"}
	g, err := NewWordList(d, words, false, nil)
	require.NoError(t, err)

	initial := g.InitialNode()
	assert.Equal(t, lexicon.SilenceSpelling, initial.Word().Spelling())
	require.Len(t, initial.Successors(), 1)
	branch := initial.Successors()[0].Node
	assert.True(t, branch.IsEmpty())
	require.Len(t, branch.Successors(), 3)
	for _, a := range branch.Successors() {
		assert.InDelta(t, math.Log(1.0/3), a.LogProbability, 1e-12)
		require.Len(t, a.Node.Successors(), 1, "no loop")
		assertEnding(t, a.Node)
	}

	looped, err := NewWordList(d, words, true, nil)
	require.NoError(t, err)
	wordNode := looped.InitialNode().Successors()[0].Node.Successors()[0].Node
	assert.Len(t, wordNode.Successors(), 2)

	_, err = NewWordList(d, []string{"missing"}, false, nil)
	assert.ErrorIs(t, err, lexicon.ErrUnknownWord)
}

// assertEnding checks that the words after n can end either at once or
// after a silence word, and that the final node carries no word.
func assertEnding(t *testing.T, n *Node) {
	t.Helper()
	var end *Node
	for _, a := range n.Successors() {
		if a.Node.IsEmpty() && !a.Node.IsFinal() && len(a.Node.Successors()) == 2 {
			end = a.Node
		}
	}
	require.NotNil(t, end, "%s has no ending", n)
	var sil, final *Node
	for _, a := range end.Successors() {
		if a.Node.IsFinal() {
			final = a.Node
		} else {
			sil = a.Node
		}
	}
	require.NotNil(t, final)
	require.NotNil(t, sil)
	assert.True(t, final.IsEmpty(), "a final node is never expanded")
	assert.Empty(t, final.Successors())
	assert.Equal(t, lexicon.SilenceSpelling, sil.Word().Spelling())
	assert.False(t, sil.IsFinal())
	require.Len(t, sil.Successors(), 1)
	assert.Same(t, final, sil.Successors()[0].Node)
}

func TestOptimizeKeepsEnding(t *testing.T) {
	d := testDict(t)
	g, err := NewWordList(d, []string{"東京"}, false, nil)
	require.NoError(t, err)
	g.Optimize()
	tokyo := g.InitialNode().Successors()[0].Node
	require.Equal(t, "東京", tokyo.Word().Spelling())
	assertEnding(t, tokyo)
}

func TestOptimizeCollapsesEmptyChains(t *testing.T) {
	d := testDict(t)
	b := NewBuilder(d, nil)
	start, _ := b.AddNode("東京", false)
	e1, _ := b.AddNode("", false)
	e2, _ := b.AddNode("", false)
	end, _ := b.AddNode("行く", true)
	_ = b.AddArc(start, e1, -1)
	_ = b.AddArc(e1, e2, -2)
	_ = b.AddArc(e2, end, -3)
	_ = b.AddArc(e2, e2, 0) // empty self loop
	g, err := b.Build(start)
	require.NoError(t, err)

	g.Optimize()
	// e2 lost its self loop and now has a single arc, so both empties go.
	require.Len(t, start.Successors(), 1)
	assert.Same(t, end, start.Successors()[0].Node)
	assert.InDelta(t, -6, start.Successors()[0].LogProbability, 1e-12)
	assert.Equal(t, []*Node{start, end}, g.Nodes())
}

func TestOptimizeKeepsBranchingEmptyNodes(t *testing.T) {
	d := testDict(t)
	g, err := NewWordList(d, []string{"東京", "行く"}, true, nil)
	require.NoError(t, err)
	before := len(g.Nodes())
	g.Optimize()
	assert.Equal(t, before, len(g.Nodes()), "branch node has two successors")
}

func TestOptimizeTerminatesOnEmptyCycle(t *testing.T) {
	d := testDict(t)
	b := NewBuilder(d, nil)
	a, _ := b.AddNode("", false)
	c, _ := b.AddNode("", false)
	_ = b.AddArc(a, c, 0)
	_ = b.AddArc(c, a, 0)
	g, err := b.Build(a)
	require.NoError(t, err)
	g.Optimize()
	assert.NotEmpty(t, g.Nodes())
}

const yamlGrammar = `
initial: 0
nodes:
  - {id: 0, word: "<sil>"}
  - {id: 1, word: 東京}
  - {id: 2, word: タワー}
  - {id: 3, final: true}
arcs:
  - {from: 0, to: 1}
  - {from: 1, to: 2, prob: 0.25}
  - {from: 1, to: 3, prob: 0.75}
  - {from: 2, to: 3}
`

func TestLoadYAML(t *testing.T) {
	d := testDict(t)
	lm, _ := mathutil.NewLogMath(10)
	g, err := Load(strings.NewReader(yamlGrammar), d, lm)
	require.NoError(t, err)
	assert.Len(t, g.Nodes(), 4)
	tokyo := g.InitialNode().Successors()[0].Node
	assert.Equal(t, "東京", tokyo.Word().Spelling())
	assert.Equal(t, mathutil.LogOne, g.InitialNode().Successors()[0].LogProbability)
	assert.InDelta(t, math.Log10(0.25), tokyo.Successors()[0].LogProbability, 1e-12)
	assert.Same(t, lm, g.LogMath())
}

func TestLoadYAMLErrors(t *testing.T) {
	d := testDict(t)
	tests := map[string]string{
		"unknown field": "initial: 0\nnodes: [{id: 0}]\nbogus: 1\n",
		"missing node":  "initial: 0\nnodes: [{id: 0}]\narcs: [{from: 0, to: 9}]\n",
		"duplicate id":  "initial: 0\nnodes: [{id: 0}, {id: 0}]\n",
		"no initial":    "initial: 5\nnodes: [{id: 0}]\n",
		"unknown word":  "initial: 0\nnodes: [{id: 0, word: 大阪}]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc), d, nil)
			assert.Error(t, err)
		})
	}
}
