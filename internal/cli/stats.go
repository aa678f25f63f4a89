package cli

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"lexgen/internal/config"
)

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats RULES",
		Short: "Show the size of each construction stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.compile(args[0], nil)
			if err != nil {
				return err
			}
			s := l.Stats()
			data := [][]string{
				{"rules", strconv.Itoa(s.Rules)},
				{"alphabet ranges", strconv.Itoa(s.AlphabetRanges)},
				{"symbol classes", strconv.Itoa(s.Classes)},
				{"actions", strconv.Itoa(s.Actions)},
				{"nfa states", strconv.Itoa(s.NFAStates)},
				{"dfa states", strconv.Itoa(s.DFAStates)},
				{"final states", strconv.Itoa(s.MinStates)},
				{"minimized", strconv.FormatBool(s.Minimized)},
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"STAGE", "COUNT"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			table.AppendBulk(data)
			table.Render()
			return nil
		},
	}
}

func (a *app) envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the LEXGEN_* environment variables and their effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := a.cfg.AsMap()
			keys := maps.Keys(vars)
			slices.Sort(keys)

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			for _, k := range keys {
				v := vars[k]
				table.Append([]string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
			}
			table.Render()
			return nil
		},
	}
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.NoArgs,
		// runs without reading a config file
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if path == "" {
				path = config.DefaultFile
			}
			if err := config.Write(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created/updated: %s\n", path)
			return nil
		},
	}
}
