// Command dflat compiles grammars into search graphs and decodes feature
// files against them.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/internal/config"
	"github.com/ieee0824/dflat/language"
	"github.com/ieee0824/dflat/lexicon"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags shared by the commands that load a model and a grammar.
type flags struct {
	configPath string
	verbose    bool

	modelPath   string
	dictPath    string
	grammarPath string
	lmPath      string
	words       string
	loop        bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "dflat",
		Short:        "Expand grammars into search graphs and decode against them",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newGraphCmd(f),
		newDecodeCmd(f),
		newAlignCmd(f),
		newSynthCmd(f),
	)
	return root
}

func (f *flags) addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.modelPath, "model", "", "acoustic model file")
	cmd.Flags().StringVar(&f.dictPath, "dict", "", "pronunciation dictionary (TSV)")
	_ = cmd.MarkFlagRequired("model")
}

func (f *flags) addGrammarFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.grammarPath, "grammar", "", "YAML grammar file")
	cmd.Flags().StringVar(&f.lmPath, "lm", "", "ARPA language model; its bigrams become the grammar")
	cmd.Flags().StringVar(&f.words, "words", "", "comma-separated word list grammar")
	cmd.Flags().BoolVar(&f.loop, "loop", false, "let the word list grammar repeat")
	cmd.MarkFlagsMutuallyExclusive("grammar", "lm", "words")
}

// env is the loaded configuration and logger of one command run.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (f *flags) env(cmd *cobra.Command) (*env, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	if f.verbose {
		cfg.LogLevel = config.LogDebug
	}
	return &env{cfg: cfg, logger: cfg.NewLogger(cmd.ErrOrStderr())}, nil
}

func (e *env) loadModel(path string) (*acoustic.TiedStateModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open acoustic model: %w", err)
	}
	defer file.Close()
	m, err := acoustic.Load(file, e.cfg.Acoustic, acoustic.WithModelLogger(e.logger), acoustic.WithModelName(path))
	if err != nil {
		return nil, fmt.Errorf("load acoustic model: %w", err)
	}
	return m, nil
}

func (e *env) loadDict(path string, units *acoustic.UnitManager) (*lexicon.Dictionary, error) {
	if path == "" {
		return lexicon.NewDictionary(units), nil
	}
	d, err := lexicon.LoadFile(path, units)
	if err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}
	return d, nil
}

func (f *flags) loadGrammar(e *env, dict *lexicon.Dictionary, m *acoustic.TiedStateModel) (*grammar.Grammar, error) {
	lm := m.LogMath()
	switch {
	case f.grammarPath != "":
		file, err := os.Open(f.grammarPath)
		if err != nil {
			return nil, fmt.Errorf("open grammar: %w", err)
		}
		defer file.Close()
		g, err := grammar.Load(file, dict, lm)
		if err != nil {
			return nil, fmt.Errorf("load grammar: %w", err)
		}
		g.Optimize()
		return g, nil
	case f.lmPath != "":
		model, err := language.LoadARPAFile(f.lmPath, lm)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("loaded language model", "path", f.lmPath, "order", model.Order(), "unigrams", model.Len(1))
		return grammar.NewBigram(dict, model, lm)
	}
	if f.words == "" {
		return nil, errors.New("one of --grammar, --lm or --words is required")
	}
	return grammar.NewWordList(dict, splitList(f.words), f.loop, lm)
}
