package grammar

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/lexicon"
)

// Builder assembles a Grammar node by node.
type Builder struct {
	g *Grammar
}

// NewBuilder creates a builder for words of dict. A nil lm uses natural
// logs.
func NewBuilder(dict *lexicon.Dictionary, lm *mathutil.LogMath) *Builder {
	if lm == nil {
		lm = mathutil.Natural()
	}
	return &Builder{g: &Grammar{lm: lm, dict: dict}}
}

// AddNode adds a node for spelling, or an empty node when spelling is "".
func (b *Builder) AddNode(spelling string, final bool) (*Node, error) {
	n := &Node{id: len(b.g.nodes), final: final, owner: b.g}
	if spelling != "" {
		w, err := b.g.dict.MustLookup(spelling)
		if err != nil {
			return nil, err
		}
		n.word = w
	}
	b.g.nodes = append(b.g.nodes, n)
	return n, nil
}

// AddArc adds an arc with a log-domain probability.
func (b *Builder) AddArc(from, to *Node, logProb float64) error {
	if from.owner != b.g || to.owner != b.g {
		return ErrForeignNode
	}
	from.arcs = append(from.arcs, Arc{Node: to, LogProbability: logProb})
	return nil
}

// Build returns the grammar starting at initial. The builder must not be
// used afterwards.
func (b *Builder) Build(initial *Node) (*Grammar, error) {
	if initial == nil {
		return nil, ErrNoInitialNode
	}
	if initial.owner != b.g {
		return nil, ErrForeignNode
	}
	b.g.initial = initial
	return b.g, nil
}

// addEnding adds an empty final node and returns an empty node leading to
// it both directly and through a silence word. Words link to the returned
// node.
func (b *Builder) addEnding() (*Node, error) {
	sil, err := b.AddNode(lexicon.SilenceSpelling, false)
	if err != nil {
		return nil, err
	}
	final, _ := b.AddNode("", true)
	_ = b.AddArc(sil, final, mathutil.LogOne)
	end, _ := b.AddNode("", false)
	_ = b.AddArc(end, sil, mathutil.LogOne)
	_ = b.AddArc(end, final, mathutil.LogOne)
	return end, nil
}

// NewWordList builds a grammar accepting any one word of words after a
// leading silence, or any sequence of them when loop is set. Each word is
// equally likely. Trailing silence is optional.
func NewWordList(dict *lexicon.Dictionary, words []string, loop bool, lm *mathutil.LogMath) (*Grammar, error) {
	b := NewBuilder(dict, lm)
	initial, err := b.AddNode(lexicon.SilenceSpelling, false)
	if err != nil {
		return nil, err
	}
	branch, _ := b.AddNode("", false)
	end, err := b.addEnding()
	if err != nil {
		return nil, err
	}
	_ = b.AddArc(initial, branch, mathutil.LogOne)

	branchScore := b.g.lm.LinearToLog(1.0 / float64(max(len(words), 1)))
	for _, w := range words {
		n, err := b.AddNode(w, false)
		if err != nil {
			return nil, err
		}
		_ = b.AddArc(branch, n, branchScore)
		_ = b.AddArc(n, end, mathutil.LogOne)
		if loop {
			_ = b.AddArc(n, branch, mathutil.LogOne)
		}
	}
	return b.Build(initial)
}

// File is the YAML form of a grammar. Probabilities are linear; a missing
// probability means 1.
//
//	initial: 0
//	nodes:
//	  - {id: 0, word: "<sil>"}
//	  - {id: 1, word: 東京}
//	  - {id: 2, word: "<sil>"}
//	  - {id: 3, final: true}
//	arcs:
//	  - {from: 0, to: 1}
//	  - {from: 1, to: 2}
//	  - {from: 1, to: 3}
//	  - {from: 2, to: 3}
//
// A final node ends the utterance and is never expanded, so a trailing
// silence word belongs on a node before it.
type File struct {
	Initial int        `yaml:"initial"`
	Nodes   []FileNode `yaml:"nodes"`
	Arcs    []FileArc  `yaml:"arcs"`
}

// FileNode is a node of a grammar File.
type FileNode struct {
	ID    int    `yaml:"id"`
	Word  string `yaml:"word"`
	Final bool   `yaml:"final"`
}

// FileArc is an arc of a grammar File.
type FileArc struct {
	From        int      `yaml:"from"`
	To          int      `yaml:"to"`
	Probability *float64 `yaml:"prob"`
}

// Load reads a YAML grammar.
func Load(r io.Reader, dict *lexicon.Dictionary, lm *mathutil.LogMath) (*Grammar, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("grammar: decoding: %w", err)
	}
	return f.Build(dict, lm)
}

// Build converts the file to a Grammar.
func (f *File) Build(dict *lexicon.Dictionary, lm *mathutil.LogMath) (*Grammar, error) {
	b := NewBuilder(dict, lm)
	byID := make(map[int]*Node, len(f.Nodes))
	for _, fn := range f.Nodes {
		if _, dup := byID[fn.ID]; dup {
			return nil, fmt.Errorf("grammar: duplicate node id %d", fn.ID)
		}
		n, err := b.AddNode(fn.Word, fn.Final)
		if err != nil {
			return nil, fmt.Errorf("grammar: node %d: %w", fn.ID, err)
		}
		byID[fn.ID] = n
	}
	for _, fa := range f.Arcs {
		from, to := byID[fa.From], byID[fa.To]
		if from == nil || to == nil {
			return nil, fmt.Errorf("grammar: arc %d->%d references a missing node", fa.From, fa.To)
		}
		p := mathutil.LogOne
		if fa.Probability != nil {
			p = b.g.lm.LinearToLog(*fa.Probability)
		}
		_ = b.AddArc(from, to, p)
	}
	initial, ok := byID[f.Initial]
	if !ok {
		return nil, ErrNoInitialNode
	}
	return b.Build(initial)
}
