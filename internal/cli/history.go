package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/journal"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded submission cycles",
		RunE:  runHistoryList,
	}
	cmd.Flags().StringP("site", "s", "", "Filter by site")
	cmd.Flags().String("outcome", "", "Filter by outcome: sent, composed, empty, no_input, send_failed")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	get := &cobra.Command{
		Use:   "get [cycle-id]",
		Short: "Show one cycle with its memory operations",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryGet,
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete cycles older than an age",
		RunE:  runHistoryPrune,
	}
	prune.Flags().String("older-than", "30d", "Age: e.g. 7d, 24h, 30m")

	cmd.AddCommand(get, prune)
	RootCmd.AddCommand(cmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	siteName, _ := cmd.Flags().GetString("site")
	outcome, _ := cmd.Flags().GetString("outcome")
	limit, _ := cmd.Flags().GetInt("limit")

	j, err := openJournal()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	cycles, err := j.List(cmd.Context(), journal.ListParams{
		Site:    siteName,
		Outcome: outcome,
		Limit:   limit,
	})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if formatFlag == "text" {
		for _, c := range cycles {
			fmt.Printf("%s  %s  %-8s %-11s %d memories  %s\n",
				c.ID, c.StartedAt.Local().Format(time.DateTime), c.Site, c.Outcome, c.Memories, truncate(c.Raw, 60))
		}
		return nil
	}
	if len(cycles) == 0 {
		fmt.Println("[]")
		return nil
	}
	printJSON(cycles)
	return nil
}

func runHistoryGet(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	entry, err := j.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	printJSON(entry)
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetString("older-than")
	age, err := journal.ParseAge(olderThan)
	if err != nil {
		return fmt.Errorf("older-than: %w", err)
	}

	j, err := openJournal()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	n, err := j.Prune(cmd.Context(), age)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"pruned":%d}`+"\n", n)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
