package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List supported chat sites and their selectors",
		RunE:  runSites,
	}

	RootCmd.AddCommand(cmd)
}

func runSites(cmd *cobra.Command, args []string) error {
	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("sites: %w", err)
	}
	adapters := registry.List()

	if formatFlag == "text" {
		for _, a := range adapters {
			fmt.Printf("%-12s %s (%s)\n", a.Name, a.URL, strings.Join(a.Hosts, ", "))
		}
		return nil
	}
	printJSON(adapters)
	return nil
}
