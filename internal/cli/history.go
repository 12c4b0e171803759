package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of transactions (1-100)")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(awardsCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history USER",
	Short: "List a user's recent point transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	txs, err := c.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), txs)
	}
	if len(txs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No transactions yet.")
		return nil
	}

	w := newTable(cmd)
	fmt.Fprintln(w, "WHEN\tPOINTS\tSOURCE\tACTIVITY\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%+d\t%s\t%s\t%s\n", formatDay(tx.OccurredAt), tx.Points, tx.Source, tx.ActivityType, tx.Description)
	}
	return w.Flush()
}

var awardsCmd = &cobra.Command{
	Use:   "awards USER",
	Short: "List a user's badges, milestones and level-ups",
	Args:  cobra.ExactArgs(1),
	RunE:  runAwards,
}

func runAwards(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	h, err := c.Awards(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), h)
	}

	w := newTable(cmd)
	fmt.Fprintln(w, "KIND\tID\tDETAIL\tAWARDED")
	for _, b := range h.Badges {
		fmt.Fprintf(w, "badge\t%s\t\t%s\n", b.BadgeID, formatDay(b.AwardedAt))
	}
	for _, m := range h.Milestones {
		fmt.Fprintf(w, "milestone\t%s\t%s %d days\t%s\n", m.MilestoneID, m.ActivityType, m.StreakDays, formatDay(m.AwardedAt))
	}
	for _, l := range h.Levels {
		fmt.Fprintf(w, "level\t%d\tat %d points\t%s\n", l.Level, l.PointsAtAward, formatDay(l.AwardedAt))
	}
	return w.Flush()
}
