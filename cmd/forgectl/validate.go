package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemforge/stem-forge/internal/content"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a challenge file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			challenges, err := content.FileSource{Path: args[0]}.Fetch(cmd.Context())
			if err == nil {
				err = content.Validate(challenges)
			}

			var problems content.ValidationErrors
			if errors.As(err, &problems) {
				for _, p := range problems {
					fmt.Fprintf(out, "  %s\n", p.Error())
				}
				return fmt.Errorf("%s: %d problem(s)", args[0], len(problems))
			}
			if err != nil {
				return err
			}

			questions := 0
			for _, c := range challenges {
				questions += c.QuestionCount()
			}
			fmt.Fprintf(out, "%s: %d challenges, %d questions OK\n", args[0], len(challenges), questions)
			return nil
		},
	}
}
