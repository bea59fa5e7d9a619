package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/bluesearch/bluesearch/internal/service"
)

// QueryCmd returns the query command
func QueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from recent Bluesky posts",
		Long: `Answer a question grounded in Bluesky posts. By default the index is
refreshed with a hybrid search (timeline, trending, full-text search) before
retrieval; --no-fresh answers from the existing index only, and --tiered
falls back to a live firehose session when the fresh results are thin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().String("persona", "", "Persona instruction for the answer style")
	cmd.Flags().Bool("no-fresh", false, "Answer from the existing index without searching")
	cmd.Flags().Bool("tiered", false, "Fall back to live streaming when fresh results are thin")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	persona, _ := cmd.Flags().GetString("persona")
	noFresh, _ := cmd.Flags().GetBool("no-fresh")
	tiered, _ := cmd.Flags().GetBool("tiered")

	pipe, err := newPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer pipe.Close()

	if tiered {
		answer, err := pipe.rag.AskTiered(cmd.Context(), question, persona)
		return printAnswer(cmd.OutOrStdout(), answer, err)
	}

	answer, err := pipe.rag.Ask(cmd.Context(), question, service.AskOptions{
		Fresh:   !noFresh,
		Persona: persona,
	})
	return printAnswer(cmd.OutOrStdout(), answer, err)
}
