package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(balanceCmd)
}

var balanceCmd = &cobra.Command{
	Use:   "balance USER",
	Short: "Show a user's points balance and level",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	bal, err := c.Balance(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, bal)
	}
	fmt.Fprintf(out, "%s: %d points, level %d (%s)\n", bal.UserID, bal.Balance, bal.Level.Number, bal.Level.Name)
	return nil
}
