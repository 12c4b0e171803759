package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/karma/internal/daemon"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(reconcileCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deactivate stale streaks and expire closed challenges",
	Long:  `Run the maintenance sweep once against the configured database: streaks with no activity since before yesterday are deactivated and challenges whose window has ended are expired. 'karma serve' runs it on [sweep].interval.`,
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}
	fmt.Fprintf(out, "Deactivated %s, expired %s\n",
		plural(int(res.StreaksDeactivated), "streak", "streaks"),
		plural(int(res.ChallengesExpired), "challenge", "challenges"))
	return nil
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild cached balances from the transaction ledger",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	drift, err := d.Ledger.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, drift)
	}
	if len(drift) == 0 {
		fmt.Fprintln(out, "All balances match the ledger.")
		return nil
	}

	w := newTable(cmd)
	fmt.Fprintln(w, "USER\tCACHED\tLEDGER")
	for _, b := range drift {
		fmt.Fprintf(w, "%s\t%d\t%d\n", b.UserID, b.Cached, b.Ledger)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Repaired %s\n", plural(len(drift), "balance", "balances"))
	return nil
}
