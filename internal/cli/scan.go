package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lexgen/internal/automaton"
	"lexgen/internal/scanner"
)

var (
	offsetStyle  = color.New(color.FgHiBlue)
	tokenStyle   = color.New(color.FgCyan, color.Bold)
	triggerStyle = color.New(color.FgYellow)
	errorStyle   = color.New(color.FgRed, color.Bold)
)

func (a *app) scanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "scan RULES [FILE]",
		Short: "Tokenize FILE (or stdin) with the rule file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			paint := func(c *color.Color, format string, args ...any) string {
				if !a.cfg.Color {
					return fmt.Sprintf(format, args...)
				}
				return c.Sprintf(format, args...)
			}

			l, err := a.compile(args[0], func(name string, an automaton.Analyzer) {
				fmt.Fprintln(out, paint(triggerStyle, "%11s trigger %s", fmt.Sprintf("@%d", an.Pos()), name))
			})
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			sc := l.Scanner(in)
			unmatched := 0
			for {
				m, err := sc.Next()
				if err == io.EOF {
					break
				}
				if errors.Is(err, scanner.ErrNoMatch) {
					unmatched++
					fmt.Fprintln(out, paint(errorStyle, "%v", err))
					continue
				}
				if err != nil {
					return err
				}
				r, ok := l.RuleOf(m.Token)
				if !ok || (r.Skip && !all) {
					continue
				}
				fmt.Fprintf(out, "%s %s %q\n",
					paint(offsetStyle, "%5d:%-5d", m.Start, m.End),
					paint(tokenStyle, "%-12s", r.Name),
					m.Text)
			}
			if unmatched > 0 {
				return fmt.Errorf("%d unmatched characters", unmatched)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also print tokens of skip rules")
	return cmd
}
