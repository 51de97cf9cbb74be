package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/compose"
	"github.com/rcliao/chat-memory/internal/memclient"
	"github.com/rcliao/chat-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compose [message]",
		Short: "Print a message with a memory block appended",
		Long: `Print a message with a memory block appended, exactly as it would be
written into the chat input. Any existing memory block is replaced.
Content can be a positional arg or piped via stdin.`,
		RunE: runCompose,
	}

	cmd.Flags().StringArrayP("memory", "m", nil, "Memory to include (repeatable)")
	cmd.Flags().Bool("search", false, "Fetch memories from the service using the message as query")
	cmd.Flags().Bool("rich", false, "Treat content as editor markup")
	cmd.Flags().Bool("strip", false, "Only remove an existing memory block")

	RootCmd.AddCommand(cmd)
}

func runCompose(cmd *cobra.Command, args []string) error {
	memories, _ := cmd.Flags().GetStringArray("memory")
	search, _ := cmd.Flags().GetBool("search")
	rich, _ := cmd.Flags().GetBool("rich")
	strip, _ := cmd.Flags().GetBool("strip")

	content, err := readContent(args)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	content = strings.TrimRight(content, "\n")

	if strip {
		fmt.Println(compose.Strip(content, rich))
		return nil
	}

	var records []model.MemoryRecord
	for _, m := range memories {
		records = append(records, model.MemoryRecord{Memory: m})
	}

	if search {
		query := strings.TrimSpace(compose.Strip(content, rich))
		if query == "" {
			return fmt.Errorf("message is empty")
		}
		found, err := newClient().Search(cmd.Context(), memclient.SearchRequest{
			Query:     query,
			UserID:    cfg.Memory.UserID,
			Limit:     cfg.Memory.Limit,
			Threshold: cfg.Memory.Threshold,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		records = append(records, found...)
	}

	fmt.Println(compose.Compose(content, records, rich))
	return nil
}
