package svctoken

import "github.com/spf13/cobra"

var (
	serviceTypeFlag string
	expiresFlag     string
)

// SvcTokenCmd is the parent command for service token operations
var SvcTokenCmd = &cobra.Command{
	Use:   "svctoken",
	Short: "Manage pre-shared service tokens",
	Long:  `Commands for managing service tokens for non-interactive callers (bots, pipelines, probes).`,
}

func init() {
	SvcTokenCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&serviceTypeFlag, "type", "", "Service type: slack_bot, ci_cd, or monitoring (required)")
	createCmd.Flags().StringVar(&expiresFlag, "expires-in", "", "Token lifetime as a duration, e.g. 720h (default: no expiry)")
	SvcTokenCmd.AddCommand(listCmd)
	SvcTokenCmd.AddCommand(revokeCmd)
}
