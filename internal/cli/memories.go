package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/memclient"
)

func init() {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "List memories stored for a user",
		Long: `List memories stored for a user, one page at a time, in the order the
service returns them. Use "chat-memory search" to rank memories against a
query instead.`,
		RunE: runMemories,
	}

	cmd.Flags().IntP("limit", "l", 50, "Max results")
	cmd.Flags().Int("offset", 0, "Skip this many memories")
	cmd.Flags().StringP("user", "u", "", "User ID (default: memory.user_id)")
	cmd.Flags().Bool("full", false, "Do not truncate memory text in text output")

	health := &cobra.Command{
		Use:   "health",
		Short: "Check that the memory service is reachable",
		RunE:  runMemoriesHealth,
	}

	cmd.AddCommand(health)
	RootCmd.AddCommand(cmd)
}

func runMemories(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	user, _ := cmd.Flags().GetString("user")
	full, _ := cmd.Flags().GetBool("full")

	req := memclient.ListRequest{UserID: cfg.Memory.UserID, Limit: limit, Offset: offset}
	if user != "" {
		req.UserID = user
	}

	page, err := newClient().List(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("memories: %w", err)
	}

	if formatFlag == "text" {
		for _, m := range page.Memories {
			text := m.Memory
			if !full {
				text = truncate(text, 80)
			}
			fmt.Printf("%-36s  %s\n", m.ID, text)
		}
		if page.HasMore {
			fmt.Printf("... %d of %d shown, next --offset %d\n", len(page.Memories), page.Total, offset+len(page.Memories))
		}
		return nil
	}
	if page.Memories == nil {
		page.Memories = []memclient.Memory{}
	}
	printJSON(page)
	return nil
}

func runMemoriesHealth(cmd *cobra.Command, args []string) error {
	c := newClient()
	if err := c.Health(cmd.Context()); err != nil {
		return fmt.Errorf("health %s: %w", c.BaseURL(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"api_url":%q}`+"\n", c.BaseURL())
	return nil
}
