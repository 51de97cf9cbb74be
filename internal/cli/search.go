package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/memclient"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the memory service",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (default: memory.limit)")
	cmd.Flags().Float64("threshold", 0, "Minimum relevance score")
	cmd.Flags().StringP("user", "u", "", "User ID (default: memory.user_id)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	user, _ := cmd.Flags().GetString("user")

	req := memclient.SearchRequest{
		Query:     strings.Join(args, " "),
		UserID:    cfg.Memory.UserID,
		Limit:     cfg.Memory.Limit,
		Threshold: cfg.Memory.Threshold,
	}
	if limit > 0 {
		req.Limit = limit
	}
	if user != "" {
		req.UserID = user
	}
	if cmd.Flags().Changed("threshold") {
		th, _ := cmd.Flags().GetFloat64("threshold")
		req.Threshold = &th
	}

	results, err := newClient().Search(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if formatFlag == "text" {
		for _, r := range results {
			fmt.Printf("- %s\n", r.Memory)
		}
		return nil
	}
	if len(results) == 0 {
		fmt.Println("[]")
		return nil
	}
	printJSON(results)
	return nil
}
