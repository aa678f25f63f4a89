package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lexgen/internal/automaton"
	"lexgen/internal/lexer"
)

func (a *app) graphCmd() *cobra.Command {
	var stage, output string
	cmd := &cobra.Command{
		Use:   "graph RULES",
		Short: "Write an automaton of the rule file as Graphviz DOT",
		Long: `Writes the NFA, the DFA or the minimized DFA built from RULES.
Example) lexgen graph rules.yaml --stage dfa -o dfa.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.compile(args[0], nil)
			if err != nil {
				return err
			}
			g := l.Graph(lexer.Stage(stage))
			if g == nil {
				return fmt.Errorf("unknown stage %q (want %s, %s or %s)", stage, lexer.StageNFA, lexer.StageDFA, lexer.StageMinimized)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := automaton.ExportDOT(w, g); err != nil {
				return err
			}
			if output != "" {
				a.logger.Info("graph written", zap.String("stage", stage), zap.String("file", output), zap.Int("states", g.Len()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", string(lexer.StageMinimized), "automaton to render: nfa, dfa or min")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default stdout)")
	return cmd
}
