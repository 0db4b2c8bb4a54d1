package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ieee0824/dflat/linguist"
)

func newGraphCmd(f *flags) *cobra.Command {
	var (
		phoneLoop bool
		dump      bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Expand a search graph and summarise its states",
		Long: `Compiles the grammar (or a phone loop with --phone-loop), expands every
reachable state and prints the number of states of each kind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := f.env(cmd)
			if err != nil {
				return err
			}
			model, err := e.loadModel(f.modelPath)
			if err != nil {
				return err
			}
			opts := []linguist.Option{linguist.WithConfig(e.cfg.Linguist), linguist.WithLogger(e.logger)}

			var g *linguist.SearchGraph
			if phoneLoop {
				if g, err = linguist.BuildPhoneLoop(model, opts...); err != nil {
					return err
				}
			} else {
				dict, err := e.loadDict(f.dictPath, model.Units())
				if err != nil {
					return err
				}
				gr, err := f.loadGrammar(e, dict, model)
				if err != nil {
					return err
				}
				l, err := linguist.New(model, gr, opts...)
				if err != nil {
					return err
				}
				if err := l.Allocate(); err != nil {
					return err
				}
				defer l.Deallocate()
				g = l.SearchGraph()
			}

			out := cmd.OutOrStdout()
			reachable := 0
			g.Walk(func(s *linguist.State) bool {
				reachable++
				if dump {
					fmt.Fprintf(out, "%d\t%s\t%s\n", s.Order(), s.Kind(), s.Signature())
				}
				return true
			})

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "graph\t%s\n", g.ID())
			for k := linguist.KindInitial; k <= linguist.KindFinal; k++ {
				if n := g.Count(k); n > 0 {
					fmt.Fprintf(tw, "%s\t%d\n", k, n)
				}
			}
			fmt.Fprintf(tw, "reachable\t%d\n", reachable)
			return tw.Flush()
		},
	}
	f.addModelFlags(cmd)
	f.addGrammarFlags(cmd)
	cmd.Flags().BoolVar(&phoneLoop, "phone-loop", false, "build a phone loop over every unit instead of a grammar")
	cmd.Flags().BoolVar(&dump, "dump", false, "print every state as order, kind and signature")
	return cmd
}
