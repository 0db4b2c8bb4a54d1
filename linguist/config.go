package linguist

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config holds the search graph probabilities. Probabilities are linear and
// converted to the acoustic model's log base when a graph is compiled.
type Config struct {
	WordInsertionProbability    float64 `yaml:"word_insertion_probability"`
	SilenceInsertionProbability float64 `yaml:"silence_insertion_probability"`
	UnitInsertionProbability    float64 `yaml:"unit_insertion_probability"`
	FillerInsertionProbability  float64 `yaml:"filler_insertion_probability"`
	LanguageWeight              float64 `yaml:"language_weight"`

	// AddOutOfGrammarBranch adds a phone loop next to the grammar that
	// absorbs speech the grammar does not cover.
	AddOutOfGrammarBranch     bool    `yaml:"add_out_of_grammar_branch"`
	OutOfGrammarProbability   float64 `yaml:"out_of_grammar_probability"`
	PhoneInsertionProbability float64 `yaml:"phone_insertion_probability"`
}

// DefaultConfig returns a neutral configuration: every insertion
// probability is 1 and the language weight is 1.
func DefaultConfig() Config {
	return Config{
		WordInsertionProbability:    1.0,
		SilenceInsertionProbability: 1.0,
		UnitInsertionProbability:    1.0,
		FillerInsertionProbability:  1.0,
		LanguageWeight:              1.0,
		OutOfGrammarProbability:     1.0,
		PhoneInsertionProbability:   1.0,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	probs := []struct {
		name string
		v    float64
	}{
		{"word_insertion_probability", c.WordInsertionProbability},
		{"silence_insertion_probability", c.SilenceInsertionProbability},
		{"unit_insertion_probability", c.UnitInsertionProbability},
		{"filler_insertion_probability", c.FillerInsertionProbability},
		{"out_of_grammar_probability", c.OutOfGrammarProbability},
		{"phone_insertion_probability", c.PhoneInsertionProbability},
	}
	for _, p := range probs {
		if !(p.v > 0) {
			errs = append(errs, fmt.Errorf("linguist: %s must be positive, got %g", p.name, p.v))
		}
	}
	if c.LanguageWeight < 0 {
		errs = append(errs, fmt.Errorf("linguist: language_weight must not be negative, got %g", c.LanguageWeight))
	}
	return errors.Join(errs...)
}

// LoadConfig decodes a YAML document over DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("linguist: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
