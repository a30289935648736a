package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/core/store"
	"github.com/hookline/hookline/internal/output"
)

type resetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget persisted route buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		all, _ := flags.GetBool("all")
		route, _ := flags.GetString("route")
		prefix, _ := flags.GetString("prefix")
		yes, _ := flags.GetBool("yes")
		dryRun, _ := flags.GetBool("dry-run")

		query := store.BucketQuery{
			All:    all,
			Route:  strings.TrimSpace(route),
			Prefix: strings.TrimSpace(prefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		backend, err := requireBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer backend.Close() // nolint:errcheck // best-effort cleanup

		result := resetResult{DryRun: dryRun}
		result.Matched, err = backend.CountBuckets(cmd.Context(), query)
		if err != nil {
			return err
		}
		if !dryRun {
			result.Deleted, err = backend.ResetBuckets(cmd.Context(), query)
			if err != nil {
				return err
			}
		}

		return emit(cmd, "rate-limit.reset", func(f output.Formatter) (string, error) {
			return renderResetResult(f, result)
		})
	},
}

// renderResetResult keeps the JSON shape for json output and draws a summary
// box otherwise.
func renderResetResult(f output.Formatter, result resetResult) (string, error) {
	if _, ok := f.(*output.JSONFormatter); ok {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}

	var line string
	if result.DryRun {
		line = fmt.Sprintf("Would delete %d bucket(s)", result.Matched)
	} else {
		line = fmt.Sprintf("Deleted %d/%d bucket(s)", result.Deleted, result.Matched)
	}
	return ascii.DrawBox(strings.Join([]string{"Rate Limit Reset", "", line}, "\n"), 0), nil
}

func init() {
	addOutputFlags(rateLimitResetCmd)
	rateLimitResetCmd.Flags().Bool("all", false, "Reset every route")
	rateLimitResetCmd.Flags().String("route", "", "Reset a single route key (exact match)")
	rateLimitResetCmd.Flags().String("prefix", "", "Reset route keys with matching prefix")
	rateLimitResetCmd.Flags().Bool("yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().Bool("dry-run", false, "Show what would be deleted")
}
