package cmd

import "github.com/spf13/cobra"

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect and reset persisted route buckets",
	Long: `Route buckets learned from upstream rate-limit headers are kept in the
configured store (store.driver) so that separate runs share them. These
commands read or clear that state; they fail when the driver is none.`,
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd, rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
