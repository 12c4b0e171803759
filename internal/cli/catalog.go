package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/karma/internal/daemon"
	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/catalog"
)

func init() {
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:       "catalog [activities|badges|milestones|levels|challenges]",
	Short:     "List the configured catalog",
	Long:      `List the built-in catalog merged with [catalog].file from the config. Loading fails if the merged catalog is invalid.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"activities", "badges", "milestones", "levels", "challenges"},
	RunE:      runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return err
	}

	section := "activities"
	if len(args) == 1 {
		section = args[0]
	}

	out := cmd.OutOrStdout()
	w := newTable(cmd)
	switch section {
	case "activities":
		if jsonOutput {
			return printJSON(out, cat.Activities())
		}
		fmt.Fprintln(w, "TYPE\tNAME\tTHEME\tPOINTS")
		for _, a := range cat.Activities() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", a.Type, a.Name, a.Theme, a.Points)
		}
	case "badges":
		if jsonOutput {
			return printJSON(out, cat.Badges())
		}
		fmt.Fprintln(w, "ID\tNAME\tTHRESHOLD\tVALUE\tACTIVITY")
		for _, b := range cat.Badges() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", b.ID, b.Name, b.Threshold, b.Value, b.ActivityType)
		}
	case "milestones":
		if jsonOutput {
			return printJSON(out, cat.Milestones())
		}
		fmt.Fprintln(w, "ID\tNAME\tDAYS\tACTIVITY\tREWARD")
		for _, m := range cat.Milestones() {
			activity := m.ActivityType
			if activity == "" {
				activity = "any"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n", m.ID, m.Name, m.Days, activity, m.RewardPoints)
		}
	case "levels":
		if jsonOutput {
			return printJSON(out, cat.Levels())
		}
		fmt.Fprintln(w, "LEVEL\tNAME\tPOINTS")
		for _, l := range cat.Levels() {
			fmt.Fprintf(w, "%d\t%s\t%d\n", l.Number, l.Name, l.PointsRequired)
		}
	case "challenges":
		all := append(cat.Challenges(domain.PeriodDaily), cat.Challenges(domain.PeriodWeekly)...)
		if jsonOutput {
			return printJSON(out, all)
		}
		fmt.Fprintln(w, "ID\tPERIOD\tKIND\tACTIVITY\tTARGET\tREWARD")
		for _, c := range all {
			activity := c.ActivityType
			if activity == "" {
				activity = "any"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", c.ID, c.Period, c.Kind, activity, c.Target, c.RewardPoints)
		}
	}
	return w.Flush()
}
