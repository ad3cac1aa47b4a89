package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemforge/stem-forge/internal/content"
)

func newChallengesCmd() *cobra.Command {
	var source string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "challenges",
		Short: "List the challenge catalog",
		Long: `List the challenges the server would serve. --source takes a URL or a
path; without it the built-in list is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var src content.Source
			switch {
			case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
				src = content.NewHTTPSource(source)
			case source != "":
				src = content.FileSource{Path: source}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			catalog := content.NewCatalog(src)
			if err := catalog.Load(ctx); err != nil {
				return fmt.Errorf("load %s: %w", source, err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDIFFICULTY\tPHASES\tQUESTIONS\tMAX SCORE\tXP\tSTATUS")
			for _, c := range catalog.List(nil) {
				status := "unlocked"
				if !c.Unlocked {
					status = "locked"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					c.ID, c.Name, c.Difficulty, len(c.Phases), c.QuestionCount(), c.MaxScore(), c.XPReward, status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "challenge URL, file or directory")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "load timeout")
	return cmd
}
