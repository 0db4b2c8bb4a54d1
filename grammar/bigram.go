package grammar

import (
	"errors"

	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/language"
	"github.com/ieee0824/dflat/lexicon"
)

// ErrEmptyVocabulary is returned when no word of a language model can be
// pronounced with the dictionary.
var ErrEmptyVocabulary = errors.New("grammar: no language model word in dictionary")

// NewBigram builds a grammar from the bigram probabilities of m: a node per
// vocabulary word, linked to every other word, entered from an initial
// silence and left through an optional silence to the final node. Words
// missing from dict, fillers and words without pronunciations are skipped.
// The arc count grows with the square of the vocabulary, so this suits small
// vocabularies.
func NewBigram(dict *lexicon.Dictionary, m *language.Model, lm *mathutil.LogMath) (*Grammar, error) {
	b := NewBuilder(dict, lm)
	lm = b.g.lm
	src := m.LogMath()
	convert := func(p float64) float64 { return lm.LnToLog(src.LogToLn(p)) }

	var words []*Node
	for _, spelling := range m.Vocab() {
		if spelling == language.SentenceStart || spelling == language.SentenceEnd {
			continue
		}
		w, ok := dict.Lookup(spelling)
		if !ok || w.IsFiller() || len(w.Pronunciations()) == 0 {
			continue
		}
		n, err := b.AddNode(spelling, false)
		if err != nil {
			return nil, err
		}
		words = append(words, n)
	}
	if len(words) == 0 {
		return nil, ErrEmptyVocabulary
	}

	initial, err := b.AddNode(lexicon.SilenceSpelling, false)
	if err != nil {
		return nil, err
	}
	end, err := b.addEnding()
	if err != nil {
		return nil, err
	}
	link := func(from, to *Node, history, word string) {
		if p := m.LogProb([]string{history}, word); p > mathutil.LogZero {
			_ = b.AddArc(from, to, convert(p))
		}
	}
	for _, to := range words {
		link(initial, to, language.SentenceStart, to.Word().Spelling())
	}
	for _, from := range words {
		for _, to := range words {
			link(from, to, from.Word().Spelling(), to.Word().Spelling())
		}
		link(from, end, from.Word().Spelling(), language.SentenceEnd)
	}
	return b.Build(initial)
}
