// Package cli implements the lexgen command line.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lexgen/internal/config"
	"lexgen/internal/lexer"
	"lexgen/internal/rulefile"
)

type app struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:           "lexgen",
		Short:         "lexgen - build and run lexical analyzers from YAML rule files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger, err = cfg.Logger()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default "+config.DefaultFile+")")

	root.AddCommand(a.graphCmd())
	root.AddCommand(a.scanCmd())
	root.AddCommand(a.statsCmd())
	root.AddCommand(a.initCmd())
	root.AddCommand(a.envCmd())
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) compile(path string, onFire rulefile.TriggerFunc) (*lexer.Lexer, error) {
	f, err := rulefile.Load(path)
	if err != nil {
		return nil, err
	}
	rules, err := f.LexerRules(onFire)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("rules loaded", zap.String("file", path), zap.Int("rules", len(rules)))
	return lexer.Compile(rules, a.cfg.LexerOptions(a.logger)...)
}
