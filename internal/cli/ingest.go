package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <topic>",
		Short: "Index posts about a topic without answering",
		Long: `Run a hybrid search for the topic and index the results. Useful for
warming the index before querying with --no-fresh.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")

	pipe, err := newPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer pipe.Close()

	posts := pipe.rag.HybridSearch(cmd.Context(), topic)
	if len(posts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No posts found.")
		return nil
	}

	added, err := pipe.ingester.IngestPosts(cmd.Context(), posts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d passages from %d posts.\n", added, len(posts))
	return nil
}
