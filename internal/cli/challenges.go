package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	challengesCmd.Flags().BoolVar(&challengeStats, "stats", false, "Show completion totals and category streaks")
	rootCmd.AddCommand(challengesCmd)
}

var challengeStats bool

var challengesCmd = &cobra.Command{
	Use:   "challenges USER",
	Short: "List a user's daily and weekly challenges",
	Args:  cobra.ExactArgs(1),
	RunE:  runChallenges,
}

func runChallenges(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if challengeStats {
		return runChallengeStats(cmd, args[0])
	}

	chs, err := c.Challenges(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), chs)
	}
	if len(chs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No challenges today.")
		return nil
	}

	w := newTable(cmd)
	fmt.Fprintln(w, "PERIOD\tCHALLENGE\tPROGRESS\tREWARD\tEXPIRES\tSTATUS")
	for _, ch := range chs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d (%.0f%%)\t%d\t%s\t%s\n",
			ch.Period,
			ch.Name,
			ch.Progress, ch.Target, ch.ProgressPct(),
			ch.RewardPoints,
			ch.ExpiresOn,
			ch.Status,
		)
	}
	return w.Flush()
}

func runChallengeStats(cmd *cobra.Command, userID string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	stats, err := c.ChallengeStats(cmd.Context(), userID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s completed (%d this week), %d points earned\n",
		stats.UserID,
		plural(int(stats.TotalCompleted), "challenge", "challenges"),
		stats.WeeklyCompleted,
		stats.PointsEarned,
	)
	if len(stats.ActiveStreaks) > 0 {
		w := newTable(cmd)
		fmt.Fprintln(w, "CATEGORY\tCURRENT\tLONGEST\tLAST")
		for _, s := range stats.ActiveStreaks {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.Category, s.CurrentStreak, s.LongestStreak, s.LastCompletionDate)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
