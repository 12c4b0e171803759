package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/karma/internal/domain"
)

func init() {
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile USER",
	Short: "Show a user's balance, level, streaks and awards",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfile,
}

func runProfile(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	p, err := c.Profile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, p)
	}

	fmt.Fprintf(out, "User:       %s\n", p.UserID)
	fmt.Fprintf(out, "Balance:    %d\n", p.Balance)
	fmt.Fprintf(out, "Level:      %d %s\n", p.Level.Number, p.Level.Name)
	if p.NextLevel != nil {
		fmt.Fprintf(out, "Next level: %s at %d (%d to go)\n", p.NextLevel.Name, p.NextLevel.PointsRequired, p.NextLevel.PointsRequired-p.Balance)
	}
	fmt.Fprintf(out, "Badges:     %d\n", len(p.Badges))
	fmt.Fprintf(out, "Milestones: %d\n", len(p.Milestones))
	if len(p.Challenges) > 0 {
		done := 0
		for _, ch := range p.Challenges {
			if ch.Status == domain.ChallengeCompleted {
				done++
			}
		}
		fmt.Fprintf(out, "Challenges: %d of %d done today\n", done, len(p.Challenges))
	}

	if len(p.Streaks) == 0 {
		fmt.Fprintln(out, "\nNo activities recorded yet.")
		return nil
	}
	fmt.Fprintln(out)
	w := newTable(cmd)
	fmt.Fprintln(w, "ACTIVITY\tCURRENT\tLONGEST\tLAST\tSTATUS")
	for _, s := range p.Streaks {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", s.ActivityType, s.CurrentStreak, s.LongestStreak, s.LastActivityDate, s.Status)
	}
	return w.Flush()
}
