package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ieee0824/dflat/acoustic"
)

func newSynthCmd(f *flags) *cobra.Command {
	var (
		phones     string
		dim, mix   int
		seed       int64
		out        string
		say        string
		framesPath string
		perState   int
		noise      float64
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a random acoustic model and optionally frames sampled from it",
		Long: `Creates a model with one three-state HMM per phone and random
single-Gaussian senones. With --say and --frames it also writes frames sampled
around the senone means of the given phones, for trying out decode and align.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := f.env(cmd)
			if err != nil {
				return err
			}
			lm, err := e.cfg.LogMath()
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed))
			model, err := acoustic.NewRandomModel(splitList(phones),
				acoustic.SynthOptions{Dim: dim, NumMix: mix, Rand: rng},
				acoustic.WithModelLogMath(lm), acoustic.WithModelLogger(e.logger))
			if err != nil {
				return err
			}

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := model.Save(file); err != nil {
				file.Close()
				return fmt.Errorf("save model: %w", err)
			}
			if err := file.Close(); err != nil {
				return err
			}
			e.logger.Info("wrote model", "path", out, "senones", model.Senones().Size())

			if say == "" || framesPath == "" {
				return nil
			}
			var hmms []*acoustic.HMM
			for _, name := range strings.Fields(say) {
				u, ok := model.Units().Lookup(name)
				if !ok {
					return fmt.Errorf("unknown phone %q", name)
				}
				h, err := model.LookupNearestHMM(u, acoustic.Undefined, true)
				if err != nil {
					return err
				}
				hmms = append(hmms, h)
			}
			frames, err := acoustic.SampleFrames(hmms, perState, noise, rng)
			if err != nil {
				return err
			}
			ff, err := os.Create(framesPath)
			if err != nil {
				return err
			}
			if err := acoustic.WriteFrames(ff, frames); err != nil {
				ff.Close()
				return err
			}
			e.logger.Info("wrote frames", "path", framesPath, "frames", len(frames))
			return ff.Close()
		},
	}
	cmd.Flags().StringVar(&phones, "phones", strings.Join(acoustic.JapanesePhones(), ","), "comma-separated phones, SIL included")
	cmd.Flags().IntVar(&dim, "dim", 13, "feature dimension")
	cmd.Flags().IntVar(&mix, "mix", 1, "gaussians per senone")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVarP(&out, "out", "o", "model.gob", "model output path")
	cmd.Flags().StringVar(&say, "say", "", "space-separated phones to sample frames for")
	cmd.Flags().StringVar(&framesPath, "frames", "", "frames output path")
	cmd.Flags().IntVar(&perState, "per-state", 2, "frames sampled per HMM state")
	cmd.Flags().Float64Var(&noise, "noise", 0.1, "noise in standard deviations")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
