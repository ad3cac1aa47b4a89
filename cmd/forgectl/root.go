package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "forgectl",
		Short: "Inspect STEM Forge challenges and study timer data",
		Long: `forgectl validates boss-challenge content packs, lists the active
catalog and prints a learner's daily pomodoro tally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newValidateCmd(), newChallengesCmd(), newTodayCmd())
	return root
}
