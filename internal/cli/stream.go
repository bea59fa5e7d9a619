package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluesearch/bluesearch/internal/service"
)

// StreamCmd returns the stream command
func StreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <question>",
		Short: "Answer a question from live firehose posts",
		Long: `Collect posts from the Jetstream firehose matching the question's
keywords (or an explicit --keywords filter), index them, and answer the
question from what was collected. Requires Bluesky credentials.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runStream,
	}

	cmd.Flags().String("keywords", "", "Filter terms for the stream (defaults to the question)")
	cmd.Flags().Int("max-posts", 0, "Stop after collecting this many posts")
	cmd.Flags().Int("minutes", 0, "Stop after streaming for this many minutes")
	cmd.Flags().String("persona", "", "Persona instruction for the answer style")

	return cmd
}

func runStream(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	keywords, _ := cmd.Flags().GetString("keywords")
	maxPosts, _ := cmd.Flags().GetInt("max-posts")
	minutes, _ := cmd.Flags().GetInt("minutes")
	persona, _ := cmd.Flags().GetString("persona")

	pipe, err := newPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer pipe.Close()

	answer, stats, err := pipe.rag.AskStreamed(cmd.Context(), question, service.StreamOptions{
		Keywords:    keywords,
		MaxPosts:    maxPosts,
		MaxDuration: time.Duration(minutes) * time.Minute,
		Persona:     persona,
	})
	if err == nil || stats.PostsCollected > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Collected %d posts, indexed %d passages.\n\n",
			stats.PostsCollected, stats.ChunksAdded)
	}
	return printAnswer(cmd.OutOrStdout(), answer, err)
}
