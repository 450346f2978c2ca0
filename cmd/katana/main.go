package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=v1.2.3".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "katana [flags] TARGET",
	Short: "Automatic CTF challenge solver",
	Long: `katana runs a pool of units against a target and follows whatever they
uncover. Decoded text, extracted strings and tool output are fed back in as
new targets until the recursion depth is reached or nothing new turns up.

Use "-" as the target to read it from standard input.

Examples:
  katana --auto --flag-format 'FLAG\{.*?\}' challenge.bin
  katana --unit base64 --unit rot -o ./out 'U1lOVHtuY2J9'
  echo 'RkxBR3thYmN9' | katana -a --ff 'FLAG\{.*?\}' -
  katana units                       # List available units`,
	Args:    cobra.ExactArgs(1),
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := buildConfig(cmd, args[0], os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := runKatana(ctx, cfg, unitDirExplicit(cmd, cfg), os.Stdout, os.Stderr); err != nil {
			printError(os.Stderr, err, cfg.Verbose)
			os.Exit(1)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
