package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/memclient"
	"github.com/rcliao/chat-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add [message]",
		Short: "Send a message to the memory service",
		Long:  "Send a message to the memory service. Content can be a positional arg or piped via stdin.",
		RunE:  runAdd,
	}

	cmd.Flags().String("role", model.RoleUser, "Message role: user or assistant")
	cmd.Flags().StringP("user", "u", "", "User ID (default: memory.user_id)")
	cmd.Flags().Bool("no-infer", false, "Store the message verbatim instead of extracting facts")
	cmd.Flags().String("meta", "", "JSON metadata")

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	user, _ := cmd.Flags().GetString("user")
	noInfer, _ := cmd.Flags().GetBool("no-infer")
	meta, _ := cmd.Flags().GetString("meta")

	content, err := readContent(args)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("content is required (positional arg or stdin)")
	}
	if !model.ValidRoles[role] {
		return fmt.Errorf("invalid role %q", role)
	}

	req := memclient.AddRequest{
		Messages: []model.ConversationMessage{{Role: role, Content: content}},
		UserID:   cfg.Memory.UserID,
		Infer:    cfg.Memory.Infer,
		Metadata: map[string]any{"provider": "cli"},
	}
	if user != "" {
		req.UserID = user
	}
	if noInfer {
		f := false
		req.Infer = &f
	}
	if meta != "" {
		extra := map[string]any{}
		if err := json.Unmarshal([]byte(meta), &extra); err != nil {
			return fmt.Errorf("parse meta: %w", err)
		}
		for k, v := range extra {
			req.Metadata[k] = v
		}
	}

	ops, err := newClient().Add(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if ops == nil {
		ops = []model.OperationRecord{}
	}
	printJSON(ops)
	return nil
}
