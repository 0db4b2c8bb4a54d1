// Package language reads back-off n-gram language models and answers
// word probability queries against them.
package language

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ieee0824/dflat/internal/mathutil"
)

// Sentence boundary tokens.
const (
	SentenceStart = "<s>"
	SentenceEnd   = "</s>"
)

// ErrBadOrder is returned for an n-gram longer than the model's order.
var ErrBadOrder = errors.New("language: n-gram order out of range")

type ngramEntry struct {
	LogProb    float64
	LogBackoff float64
}

// Model is a back-off n-gram language model. Probabilities are held in
// the base of the model's LogMath.
type Model struct {
	order int
	lm    *mathutil.LogMath
	grams []map[string]ngramEntry // grams[n-1] holds the n-grams
}

// NewModel creates an empty model of the given order. A nil lm uses
// natural logs.
func NewModel(order int, lm *mathutil.LogMath) *Model {
	if lm == nil {
		lm = mathutil.Natural()
	}
	m := &Model{order: max(order, 1), lm: lm}
	m.grams = make([]map[string]ngramEntry, m.order)
	for i := range m.grams {
		m.grams[i] = make(map[string]ngramEntry)
	}
	return m
}

// Order returns the longest n-gram the model holds.
func (m *Model) Order() int { return m.order }

// LogMath returns the log base of the model's probabilities.
func (m *Model) LogMath() *mathutil.LogMath { return m.lm }

// Len returns the number of n-grams of order n.
func (m *Model) Len(n int) int {
	if n < 1 || n > m.order {
		return 0
	}
	return len(m.grams[n-1])
}

// Add stores the n-gram words with its log probability and back-off
// weight, both in the model's base.
func (m *Model) Add(logProb, logBackoff float64, words ...string) error {
	if len(words) < 1 || len(words) > m.order {
		return fmt.Errorf("%w: %d-gram in order %d model", ErrBadOrder, len(words), m.order)
	}
	m.grams[len(words)-1][key(words...)] = ngramEntry{LogProb: logProb, LogBackoff: logBackoff}
	return nil
}

func key(words ...string) string { return strings.Join(words, "\x00") }

// LogProb returns the log probability of a word given its history.
// Uses backoff when the exact n-gram is not found.
func (m *Model) LogProb(history []string, word string) float64 {
	backoff := mathutil.LogOne
	for n := min(len(history), m.order-1); n >= 0; n-- {
		ctx := history[len(history)-n:]
		if e, ok := m.grams[n][key(append(slices.Clone(ctx), word)...)]; ok {
			return backoff + e.LogProb
		}
		if n > 0 {
			if e, ok := m.grams[n-1][key(ctx...)]; ok {
				backoff += e.LogBackoff
			}
		}
	}
	return mathutil.LogZero
}

// SentenceLogProb returns the total log probability of a sentence (word sequence).
// Automatically adds <s> at the beginning and </s> at the end.
func (m *Model) SentenceLogProb(words []string) float64 {
	total := mathutil.LogOne
	history := []string{SentenceStart}
	for _, w := range words {
		total += m.LogProb(history, w)
		history = append(history, w)
	}
	total += m.LogProb(history, SentenceEnd)
	return total
}

// Vocab returns all words in the unigram vocabulary, sorted.
func (m *Model) Vocab() []string {
	words := make([]string, 0, len(m.grams[0]))
	for w := range m.grams[0] {
		words = append(words, w)
	}
	slices.Sort(words)
	return words
}
