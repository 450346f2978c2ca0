package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/katana/internal/config"
	"github.com/steveyegge/katana/internal/registry"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List available units",
	Long: `List the built-in units and those found in the unit directory, with
their dependencies and whether they can run on this machine.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Default()
		if flagConfig != "" {
			if err := cfg.LoadFile(flagConfig); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		if err := cfg.ApplyEnv(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("unitdir") {
			cfg.UnitDir = flagUnitDir
		}

		log := newLogger(os.Stderr, false)
		catalog, err := loadCatalog(cfg.UnitDir, unitDirExplicit(cmd, cfg), log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		listUnits(os.Stdout, catalog)
	},
}

func init() {
	rootCmd.AddCommand(unitsCmd)
}

// listUnits prints every catalogued unit type.
func listUnits(w io.Writer, catalog *registry.Catalog) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	resolution := catalog.Resolve(nil)

	fmt.Fprintf(w, "\n%s\n\n", cyan("Available Units"))
	for _, t := range catalog.Types() {
		info := t.Info()
		fmt.Fprintf(w, "  %s\n", cyan(info.Name))
		if info.Description != "" {
			fmt.Fprintf(w, "    %s\n", info.Description)
		}
		fmt.Fprintf(w, "    Source: %s\n", gray(info.Source))
		if info.RecursionProtected {
			fmt.Fprintf(w, "    Recursion protected: %s\n", gray("yes"))
		}
		if len(info.Dependencies) > 0 {
			fmt.Fprintf(w, "    Dependencies: %s\n", gray(strings.Join(info.Dependencies, ", ")))
		}
		if missing, ok := resolution.Unavailable[info.Name]; ok {
			fmt.Fprintf(w, "    %s missing %s\n", yellow("⚠"), strings.Join(missing, ", "))
		}
		fmt.Fprintln(w)
	}
}
