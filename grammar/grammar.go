// Package grammar holds the word graph a search graph is expanded from.
package grammar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/lexicon"
)

var (
	// ErrNoInitialNode is returned when a grammar is built without an
	// initial node.
	ErrNoInitialNode = errors.New("grammar: no initial node")
	// ErrForeignNode is returned when a node from another builder is used.
	ErrForeignNode = errors.New("grammar: node belongs to another grammar")
)

// Node is a vertex of the word graph. A node without a word is empty and
// only passes control on to its successors.
type Node struct {
	id    int
	word  *lexicon.Word
	final bool
	arcs  []Arc
	owner *Grammar
}

// Arc is a weighted transition between grammar nodes.
type Arc struct {
	Node           *Node
	LogProbability float64
}

// ID returns the node id, unique within its grammar.
func (n *Node) ID() int { return n.id }

// Word returns the node's word, nil for an empty node.
func (n *Node) Word() *lexicon.Word { return n.word }

// IsEmpty reports whether the node carries no word.
func (n *Node) IsEmpty() bool { return n.word == nil }

// IsFinal reports whether an utterance may end at the node.
func (n *Node) IsFinal() bool { return n.final }

// Successors returns the node's outgoing arcs.
func (n *Node) Successors() []Arc { return n.arcs }

func (n *Node) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "G%d", n.id)
	if n.word != nil {
		b.WriteString(" " + n.word.Spelling())
	}
	if n.final {
		b.WriteString(" final")
	}
	return b.String()
}

// Grammar is a directed graph of nodes with a single initial node. A
// Grammar is immutable once built, apart from Optimize.
type Grammar struct {
	lm      *mathutil.LogMath
	dict    *lexicon.Dictionary
	initial *Node
	nodes   []*Node
}

// InitialNode returns the node every utterance starts from.
func (g *Grammar) InitialNode() *Node { return g.initial }

// Nodes returns all nodes in id order.
func (g *Grammar) Nodes() []*Node { return g.nodes }

// Dictionary returns the dictionary the grammar's words come from.
func (g *Grammar) Dictionary() *lexicon.Dictionary { return g.dict }

// LogMath returns the log base of the arc probabilities.
func (g *Grammar) LogMath() *mathutil.LogMath { return g.lm }

// Words returns the distinct words reachable in the grammar.
func (g *Grammar) Words() []*lexicon.Word {
	seen := make(map[*lexicon.Word]bool)
	var out []*lexicon.Word
	for _, n := range g.nodes {
		if n.word != nil && !seen[n.word] {
			seen[n.word] = true
			out = append(out, n.word)
		}
	}
	return out
}

// Optimize removes empty pass-through nodes: an arc into an empty,
// non-final node with exactly one successor is redirected to that
// successor with the probabilities summed, and empty self loops are
// dropped. Nodes no longer reachable from the initial node are removed.
func (g *Grammar) Optimize() {
	for _, n := range g.nodes {
		if n.IsEmpty() {
			n.arcs = dropSelfLoops(n)
		}
	}
	for _, n := range g.nodes {
		arcs := make([]Arc, 0, len(n.arcs))
		for _, a := range n.arcs {
			a = skipEmpty(a)
			if a.Node == n && n.IsEmpty() {
				continue
			}
			arcs = append(arcs, a)
		}
		n.arcs = arcs
	}
	g.prune()
}

func dropSelfLoops(n *Node) []Arc {
	arcs := make([]Arc, 0, len(n.arcs))
	for _, a := range n.arcs {
		if a.Node != n {
			arcs = append(arcs, a)
		}
	}
	return arcs
}

func skipEmpty(a Arc) Arc {
	seen := map[*Node]bool{}
	for a.Node.IsEmpty() && !a.Node.final && len(a.Node.arcs) == 1 && !seen[a.Node] {
		seen[a.Node] = true
		next := a.Node.arcs[0]
		if next.Node == a.Node {
			break
		}
		a = Arc{Node: next.Node, LogProbability: a.LogProbability + next.LogProbability}
	}
	return a
}

func (g *Grammar) prune() {
	reach := map[*Node]bool{g.initial: true}
	stack := []*Node{g.initial}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, a := range n.arcs {
			if !reach[a.Node] {
				reach[a.Node] = true
				stack = append(stack, a.Node)
			}
		}
	}
	nodes := g.nodes[:0]
	for _, n := range g.nodes {
		if reach[n] {
			nodes = append(nodes, n)
		}
	}
	g.nodes = nodes
}

func (g *Grammar) String() string {
	var b strings.Builder
	for _, n := range g.nodes {
		b.WriteString(n.String())
		for _, a := range n.arcs {
			fmt.Fprintf(&b, " -> G%d(%.3g)", a.Node.id, a.LogProbability)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
