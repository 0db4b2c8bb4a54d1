// Package lexicon maps word spellings to pronunciations built from
// acoustic units.
package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/ieee0824/dflat/acoustic"
)

// Reserved spellings.
const (
	SilenceSpelling = "<sil>"
	UnknownSpelling = "<unk>"
)

var (
	// ErrEmptyPronunciation is returned when a pronunciation has no units.
	ErrEmptyPronunciation = errors.New("lexicon: empty pronunciation")
	// ErrUnknownWord is returned when a word is not in the dictionary.
	ErrUnknownWord = errors.New("lexicon: unknown word")
	// ErrFillerConflict is returned when a unit is used by both filler and
	// speech words.
	ErrFillerConflict = errors.New("lexicon: unit used by filler and speech words")
)

// Word is a dictionary entry with one or more pronunciations.
type Word struct {
	spelling string
	filler   bool
	prons    []*Pronunciation
}

// Spelling returns the word's spelling.
func (w *Word) Spelling() string { return w.spelling }

// IsFiller reports whether the word is a non-speech filler.
func (w *Word) IsFiller() bool { return w.filler }

// Pronunciations returns the word's pronunciation variants in load order.
func (w *Word) Pronunciations() []*Pronunciation { return w.prons }

func (w *Word) String() string { return w.spelling }

// Pronunciation is one way of saying a word.
type Pronunciation struct {
	word    *Word
	variant int
	reading string
	units   []*acoustic.Unit
}

// Word returns the pronounced word.
func (p *Pronunciation) Word() *Word { return p.word }

// Variant returns the 0-based index among the word's pronunciations.
func (p *Pronunciation) Variant() int { return p.variant }

// Reading returns the kana reading, if any.
func (p *Pronunciation) Reading() string { return p.reading }

// Units returns the context-independent units of the pronunciation.
func (p *Pronunciation) Units() []*acoustic.Unit { return p.units }

func (p *Pronunciation) String() string {
	names := make([]string, len(p.units))
	for i, u := range p.units {
		names[i] = u.Name()
	}
	return p.word.spelling + "(" + strings.Join(names, " ") + ")"
}

// Dictionary holds word-to-pronunciation mappings. It is filled at load
// time and read-only afterwards.
type Dictionary struct {
	units *acoustic.UnitManager
	words map[string]*Word
}

// NewDictionary creates a dictionary holding the silence word, pronounced
// as the silence unit, and the unknown word, which has no pronunciation.
func NewDictionary(units *acoustic.UnitManager) *Dictionary {
	d := &Dictionary{
		units: units,
		words: make(map[string]*Word),
	}
	sil := &Word{spelling: SilenceSpelling, filler: true}
	sil.prons = []*Pronunciation{{word: sil, units: []*acoustic.Unit{units.Silence()}}}
	d.words[SilenceSpelling] = sil
	d.words[UnknownSpelling] = &Word{spelling: UnknownSpelling}
	return d
}

// Units returns the unit manager pronunciations are built from.
func (d *Dictionary) Units() *acoustic.UnitManager { return d.units }

// IsFillerSpelling reports whether spelling names a filler word such as
// "<sil>" or "++NOISE++".
func IsFillerSpelling(spelling string) bool {
	return spelling != UnknownSpelling &&
		(strings.HasPrefix(spelling, "<") && strings.HasSuffix(spelling, ">") ||
			strings.HasPrefix(spelling, "++") && strings.HasSuffix(spelling, "++"))
}

// Add appends a pronunciation to the word spelled spelling, creating the
// word if needed. Units of filler words are registered as filler units. A
// unit already registered with the other kind is an ErrFillerConflict,
// apart from non-speech phones, which are fillers in any word.
func (d *Dictionary) Add(spelling, reading string, unitNames []string) (*Pronunciation, error) {
	if len(unitNames) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyPronunciation, spelling)
	}
	w, ok := d.words[spelling]
	filler := IsFillerSpelling(spelling)
	if ok {
		filler = w.filler
	}
	units := make([]*acoustic.Unit, len(unitNames))
	for i, name := range unitNames {
		if acoustic.IsFillerPhone(name) {
			units[i] = d.units.Get(name, true)
			continue
		}
		if u, known := d.units.Lookup(name); known && u.IsFiller() != filler {
			return nil, fmt.Errorf("%w: %s in %q", ErrFillerConflict, name, spelling)
		}
		units[i] = d.units.Get(name, filler)
	}
	if !ok {
		w = &Word{spelling: spelling, filler: filler}
		d.words[spelling] = w
	}
	p := &Pronunciation{word: w, variant: len(w.prons), reading: reading, units: units}
	w.prons = append(w.prons, p)
	return p, nil
}

// Load reads a pronunciation dictionary from a tab-separated file.
// Formats:
//
//	word<TAB>reading<TAB>phone1 phone2 ...
//	word<TAB>reading<TAB>              (phones derived from the kana reading)
//	word<TAB>phone1 phone2 ...
//
// A trailing variant marker such as "word(2)" is dropped.
func Load(r io.Reader, units *acoustic.UnitManager) (*Dictionary, error) {
	d := NewDictionary(units)
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		var word, reading string
		var phones []string
		switch len(parts) {
		case 3:
			word, reading = parts[0], parts[1]
			phones = strings.Fields(parts[2])
			if len(phones) == 0 {
				phones = KanaToPhones(reading)
			}
		case 2:
			word = parts[0]
			phones = strings.Fields(parts[1])
		default:
			return nil, fmt.Errorf("line %d: expected 2 or 3 tab-separated fields, got %d", lineNum, len(parts))
		}

		if _, err := d.Add(stripVariant(word), reading, phones); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return d, nil
}

// LoadFile is a convenience wrapper that opens a file path.
func LoadFile(path string, units *acoustic.UnitManager) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, units)
}

func stripVariant(word string) string {
	if !strings.HasSuffix(word, ")") {
		return word
	}
	open := strings.LastIndexByte(word, '(')
	if open <= 0 {
		return word
	}
	for _, c := range word[open+1 : len(word)-1] {
		if c < '0' || c > '9' {
			return word
		}
	}
	return word[:open]
}

// Lookup returns the word spelled spelling.
func (d *Dictionary) Lookup(spelling string) (*Word, bool) {
	w, ok := d.words[spelling]
	return w, ok
}

// MustLookup is like Lookup but returns ErrUnknownWord for a missing word.
func (d *Dictionary) MustLookup(spelling string) (*Word, error) {
	w, ok := d.words[spelling]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWord, spelling)
	}
	return w, nil
}

// Silence returns the silence word.
func (d *Dictionary) Silence() *Word { return d.words[SilenceSpelling] }

// Unknown returns the unknown word.
func (d *Dictionary) Unknown() *Word { return d.words[UnknownSpelling] }

// Words returns all spellings in sorted order.
func (d *Dictionary) Words() []string {
	words := make([]string, 0, len(d.words))
	for w := range d.words {
		words = append(words, w)
	}
	slices.Sort(words)
	return words
}

// FillerWords returns the filler words in spelling order.
func (d *Dictionary) FillerWords() []*Word {
	var out []*Word
	for _, s := range d.Words() {
		if w := d.words[s]; w.filler {
			out = append(out, w)
		}
	}
	return out
}
