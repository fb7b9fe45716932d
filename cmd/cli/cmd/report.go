package cmd

import (
	"cmp"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"pdsa/internal/analysis"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [analysis_file]",
	Short: "Summarise an analysis document",
	Long:  `Read the analysis document written by the controller and print the total risk, why the campaign stopped, and the contingencies contributing most to the risk.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := analysis.Read(args[0])
		if err != nil {
			cmd.Printf("Failed to read analysis: %v\n", err)
			return err
		}
		top, _ := cmd.Flags().GetInt("top")
		printReport(cmd, doc, top)
		return nil
	},
}

func printReport(cmd *cobra.Command, doc *analysis.Document, top int) {
	icon := colorGreen + "✓" + colorReset
	if doc.Interrupted {
		icon = colorYellow + "!" + colorReset
	}
	cmd.Printf("%s %sCampaign %s%s\n", icon, colorBold, doc.CampaignID, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sStop reason:%s  %s\n", colorDim, colorReset, doc.StopReason)
	cmd.Printf("%sTotal risk:%s   %.6g %s(threshold %.3g)%s\n", colorDim, colorReset, doc.TotalRisk, colorDim, doc.Threshold, colorReset)
	cmd.Printf("%sJobs:%s         %d\n", colorDim, colorReset, doc.Jobs)
	cmd.Printf("%sCPU time:%s     %s\n", colorDim, colorReset, formatDuration(seconds(doc.ComputationTime)))
	cmd.Printf("%sWall time:%s    %s\n", colorDim, colorReset, formatDuration(seconds(doc.WallTime)))

	var converged, exhausted int
	for _, c := range doc.Contingencies {
		if c.Converged {
			converged++
		}
		if c.Exhausted {
			exhausted++
		}
	}
	cmd.Printf("%sContingencies:%s %d total, %d converged, %d exhausted\n",
		colorDim, colorReset, len(doc.Contingencies), converged, exhausted)

	ranked := slices.Clone(doc.Contingencies)
	slices.SortStableFunc(ranked, func(a, b analysis.Contingency) int {
		return cmp.Compare(b.Risk, a.Risk)
	})
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	cmd.Println()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTINGENCY\tRISK\tSHARE %\tMEAN %\tMAX %\tSTATICS\tJOBS\tI1\tI2\tSTATE")
	for _, c := range ranked {
		share := 0.0
		if doc.TotalRisk > 0 {
			share = 100 * c.Risk / doc.TotalRisk
		}
		fmt.Fprintf(w, "%s\t%.4g\t%.1f\t%.2f\t%.2f\t%d\t%d\t%.3g\t%.3g\t%s\n",
			c.ID, c.Risk, share, c.Mean, c.Max, c.StaticSamples, c.Jobs, c.Indicator1, c.Indicator2, contingencyState(c))
	}
	w.Flush()
}

func contingencyState(c analysis.Contingency) string {
	switch {
	case c.Exhausted:
		return "exhausted"
	case c.Converged:
		return "converged"
	}
	return "open"
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func init() {
	reportCmd.Flags().Int("top", 10, "number of contingencies to list (0 for all)")
	rootCmd.AddCommand(reportCmd)
}
