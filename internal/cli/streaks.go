package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(streaksCmd)
}

var streaksCmd = &cobra.Command{
	Use:   "streaks USER",
	Short: "List a user's streaks per activity",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreaks,
}

func runStreaks(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	streaks, err := c.Streaks(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), streaks)
	}
	if len(streaks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No streaks yet.")
		return nil
	}

	w := newTable(cmd)
	fmt.Fprintln(w, "ACTIVITY\tCURRENT\tLONGEST\tSTARTED\tLAST\tSTATUS")
	for _, s := range streaks {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			s.ActivityType,
			s.CurrentStreak,
			s.LongestStreak,
			s.StreakStartDate,
			s.LastActivityDate,
			s.Status,
		)
	}
	return w.Flush()
}
