package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemforge/stem-forge/internal/domain"
	"github.com/stemforge/stem-forge/internal/store"
)

func newTodayCmd() *cobra.Command {
	var dbPath, userID, date string

	cmd := &cobra.Command{
		Use:   "today",
		Short: "Print a learner's pomodoro tally for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if date == "" {
				date = domain.DateKey(time.Now())
			} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}

			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			rec, err := repo.LoadDailyRecord(cmd.Context(), userID, date)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rec == nil {
				fmt.Fprintf(out, "%s: no sessions recorded for %s\n", date, userID)
				return nil
			}
			fmt.Fprintf(out, "%s: %d work sessions, %d focus minutes\n",
				rec.Date, rec.CompletedWorkSessions, rec.TotalFocusMinutes)
			for _, task := range rec.CompletedTasks {
				fmt.Fprintf(out, "  - %s\n", task)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "./data/stemforge.db", "SQLite database path")
	cmd.Flags().StringVar(&userID, "user", "", "learner ID (anon_...)")
	cmd.Flags().StringVar(&date, "date", "", "day to show, YYYY-MM-DD (default today)")
	return cmd
}
