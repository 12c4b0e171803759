package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/karma/internal/api"
)

func init() {
	recordCmd.Flags().StringVar(&recordAt, "at", "", "Completion time, RFC 3339 (default: now)")
	recordCmd.Flags().StringVar(&recordKey, "key", "", "Idempotency key")
	recordCmd.Flags().StringVar(&recordContext, "context", "", "Extra JSON stored with the day's record")
	rootCmd.AddCommand(recordCmd)
}

var (
	recordAt      string
	recordKey     string
	recordContext string
)

var recordCmd = &cobra.Command{
	Use:   "record USER ACTIVITY",
	Short: "Record a completed activity",
	Long:  `Record a completed activity for a user and print the points, streak and awards it produced.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runRecord,
}

func runRecord(cmd *cobra.Command, args []string) error {
	req := api.RecordRequest{
		ActivityType:   args[1],
		IdempotencyKey: recordKey,
	}
	if recordAt != "" {
		ts, err := time.Parse(time.RFC3339, recordAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		req.Timestamp = &ts
	}
	if recordContext != "" {
		if !json.Valid([]byte(recordContext)) {
			return fmt.Errorf("--context is not valid JSON")
		}
		req.Context = json.RawMessage(recordContext)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	sum, err := c.RecordActivity(cmd.Context(), args[0], req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, sum)
	}

	if sum.Duplicate {
		fmt.Fprintf(out, "Already recorded (%s on %s)\n", sum.ActivityType, sum.Date)
	} else {
		fmt.Fprintf(out, "+%d points for %s on %s\n", sum.PointsAwarded, sum.ActivityType, sum.Date)
	}
	fmt.Fprintf(out, "Streak:   %s (longest %d)\n", plural(sum.Streak.Current, "day", "days"), sum.Streak.Longest)
	fmt.Fprintf(out, "Today:    %s\n", plural(sum.DailyCount, "completion", "completions"))
	if sum.BonusPoints > 0 {
		fmt.Fprintf(out, "Bonus:    +%d\n", sum.BonusPoints)
	}
	for _, a := range sum.NewAwards {
		fmt.Fprintf(out, "Unlocked: %s %s\n", a.Kind, a.Name)
	}
	fmt.Fprintf(out, "Balance:  %d\n", sum.Balance)
	return nil
}
