package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ieee0824/dflat"
	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/decoder"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/lexicon"
)

func (e *env) recognizer(model *acoustic.TiedStateModel, g *grammar.Grammar) (*dflat.Recognizer, error) {
	return dflat.NewRecognizer(model, g,
		dflat.WithLinguistConfig(e.cfg.Linguist),
		dflat.WithDecoderConfig(e.cfg.Decoder),
		dflat.WithLogger(e.logger),
	)
}

func printResult(cmd *cobra.Command, res *decoder.Result, timings bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Text)
	if !timings {
		return
	}
	fmt.Fprintf(out, "score %.4f final %t\n", res.LogScore, res.Final)
	for _, w := range res.Words {
		fmt.Fprintf(out, "  [%d-%d] %s\n", w.StartFrame, w.EndFrame, w.Text)
	}
}

func newDecodeCmd(f *flags) *cobra.Command {
	var (
		ref     string
		timings bool
	)
	cmd := &cobra.Command{
		Use:   "decode FRAMES",
		Short: "Decode a text feature file against a grammar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := f.env(cmd)
			if err != nil {
				return err
			}
			model, err := e.loadModel(f.modelPath)
			if err != nil {
				return err
			}
			dict, err := e.loadDict(f.dictPath, model.Units())
			if err != nil {
				return err
			}
			g, err := f.loadGrammar(e, dict, model)
			if err != nil {
				return err
			}
			r, err := e.recognizer(model, g)
			if err != nil {
				return err
			}
			defer r.Close()

			res, err := r.RecognizeFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd, res, timings)
			if ref != "" {
				refRunes := []rune(ref)
				dist := lexicon.EditDistance(refRunes, []rune(res.Text))
				fmt.Fprintf(cmd.OutOrStdout(), "cer %.4f (%d/%d)\n",
					float64(dist)/float64(max(len(refRunes), 1)), dist, len(refRunes))
			}
			return nil
		},
	}
	f.addModelFlags(cmd)
	f.addGrammarFlags(cmd)
	cmd.Flags().StringVar(&ref, "ref", "", "reference transcript; prints the character error rate")
	cmd.Flags().BoolVar(&timings, "timings", false, "print word frame boundaries and the path score")
	return cmd
}

func newAlignCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "align FRAMES WORD...",
		Short: "Force-align a text feature file to a word sequence",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := f.env(cmd)
			if err != nil {
				return err
			}
			model, err := e.loadModel(f.modelPath)
			if err != nil {
				return err
			}
			dict, err := e.loadDict(f.dictPath, model.Units())
			if err != nil {
				return err
			}
			words := args[1:]
			g, err := grammar.NewWordList(dict, words, false, model.LogMath())
			if err != nil {
				return err
			}
			r, err := e.recognizer(model, g)
			if err != nil {
				return err
			}
			defer r.Close()

			frames, err := acoustic.ReadFramesFile(args[0])
			if err != nil {
				return err
			}
			res, err := r.Align(cmd.Context(), words, frames)
			if err != nil {
				return err
			}
			printResult(cmd, res, true)
			return nil
		},
	}
	f.addModelFlags(cmd)
	return cmd
}
