// Package cli implements the chat-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/chat-memory/internal/config"
	"github.com/rcliao/chat-memory/internal/journal"
	"github.com/rcliao/chat-memory/internal/logging"
	"github.com/rcliao/chat-memory/internal/memclient"
)

var (
	dbPath     string
	configPath string
	formatFlag string
	debug      bool

	cfg    *config.Config
	logger = zap.NewNop()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "chat-memory",
	Short: "Memory for browser chat UIs",
	Long: `chat-memory drives a chat page in Chrome, intercepts each message before it
is sent, appends relevant memories from a memory service, then sends it and
records the conversation back to the service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			configPath = config.DefaultPath()
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c

		l, err := logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Debug:   debug,
			Console: cfg.Logging.JSON != nil && !*cfg.Logging.JSON,
		})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// Execute runs the root command and flushes the logger, also when the
// command failed.
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Journal path (default: $CHAT_MEMORY_DB or ~/.chat-memory/journal.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config path (default: $CHAT_MEMORY_CONFIG or ~/.chat-memory/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.JournalPath()
}

func openJournal() (*journal.SQLiteJournal, error) {
	return journal.NewSQLiteJournal(getDBPath())
}

func newClient() *memclient.Client {
	var opts []memclient.Option
	if cfg.Memory.APIKey != "" {
		opts = append(opts, memclient.WithAPIKey(cfg.Memory.APIKey))
	}
	return memclient.New(cfg.Memory.APIURL, opts...)
}

// readContent takes positional args first, then piped stdin.
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", nil
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
