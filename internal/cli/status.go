package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipe, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer pipe.Close()

			count, err := pipe.repo.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed passages: %d\n", count)
			return nil
		},
	}
}

// ResetCmd returns the reset command
func ResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every indexed passage",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("refusing to clear the index without --force")
			}

			pipe, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer pipe.Close()

			if err := pipe.repo.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Index cleared.")
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Confirm clearing the index")
	return cmd
}
