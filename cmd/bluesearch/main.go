package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bluesearch/bluesearch/internal/cli"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bluesearch",
		Short: "Bluesearch CLI - Question answering over Bluesky posts",
		Long: `Bluesearch answers questions using recent Bluesky posts as context.

Environment variables:
  BLUESEARCH_OPENAI_API_KEY       OpenAI API key (required)
  BLUESEARCH_DATABASE_URL         Postgres connection string (required)
  BLUESEARCH_BLUESKY_HANDLE       Bluesky handle for authenticated search
  BLUESEARCH_BLUESKY_APP_PASSWORD Bluesky app password`,
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(cli.QueryCmd())
	rootCmd.AddCommand(cli.StreamCmd())
	rootCmd.AddCommand(cli.IngestCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.ResetCmd())
	return rootCmd
}

func main() {
	rootCmd := newRootCmd()

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
