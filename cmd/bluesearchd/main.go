package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bluesearch/bluesearch/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bluesearchd",
		Short: "Bluesearch daemon",
		Long:  "Bluesearch daemon for running the API server and background stream worker",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
