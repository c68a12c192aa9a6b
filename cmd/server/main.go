package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "collab-server",
		Short: "Real-time sync server for a shared rich-text document",
		Long: `collab-server keeps one shared rich-text document, its formatting,
and every participant's caret in memory, and relays updates between all
connected websocket clients.

Running it without a subcommand is the same as "collab-server serve".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := serveCmd()
	rootCmd.Flags().AddFlagSet(serve.Flags())
	rootCmd.RunE = serve.RunE

	rootCmd.AddCommand(serve, watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", err)
		os.Exit(1)
	}
}
