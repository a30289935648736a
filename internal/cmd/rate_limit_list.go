package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/core/store"
	"github.com/hookline/hookline/internal/output"
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted route buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		prefix, _ := cmd.Flags().GetString("prefix")
		route, _ := cmd.Flags().GetString("route")
		query := store.BucketQuery{
			Route:  strings.TrimSpace(route),
			Prefix: strings.TrimSpace(prefix),
		}
		if query.Route == "" && query.Prefix == "" {
			query.All = true
		}

		backend, err := requireBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup

		entries, err := backend.ListBuckets(cmd.Context(), query)
		if err != nil {
			return err
		}

		return emit(cmd, "rate-limit.list", func(f output.Formatter) (string, error) {
			return f.FormatBuckets(output.RowsFromEntries(entries))
		})
	},
}

func init() {
	addOutputFlags(rateLimitListCmd)
	rateLimitListCmd.Flags().String("route", "", "Show a single route key (exact match)")
	rateLimitListCmd.Flags().String("prefix", "", "Show route keys with matching prefix")
}
