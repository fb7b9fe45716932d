package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"pdsa/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the progress of a running campaign",
	Long:  `Query the controller for the campaign state (init, running, draining, terminated), the current total risk and threshold, job counters and how many contingencies are still unconverged.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewStatusClient(viper.GetString("url"))

		status, err := client.GetStatus()
		if err != nil {
			cmd.Printf("Failed to get status: %v\n", err)
			return err
		}
		printStatus(cmd, *status)

		if withResults, _ := cmd.Flags().GetBool("results"); withResults {
			results, err := client.GetResults()
			if err != nil {
				cmd.Printf("Failed to get results: %v\n", err)
				return err
			}
			printResults(cmd, *results)
		}
		return nil
	},
}

func printStatus(cmd *cobra.Command, s api.CampaignStatus) {
	cmd.Printf("%s %sCampaign %s%s\n", stateIcon(s.State), colorBold, s.CampaignID, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sState:%s        %s\n", colorDim, colorReset, colorizeState(s.State))
	if s.StopReason != "" {
		cmd.Printf("%sStop reason:%s  %s\n", colorDim, colorReset, s.StopReason)
	}
	cmd.Printf("%sTotal risk:%s   %.6g %s(threshold %.3g)%s\n", colorDim, colorReset, s.TotalRisk, colorDim, s.Threshold, colorReset)
	cmd.Printf("%sRounds:%s       %d\n", colorDim, colorReset, s.Rounds)
	cmd.Printf("%sJobs:%s         %d done, %d running, %d queued, %d follow-ups\n", colorDim, colorReset,
		s.JobsCompleted, s.JobsInFlight, s.QueueDepth, s.FollowUps)
	cmd.Printf("%sContingencies:%s %d total: %s%d converged%s, %s%d unconverged%s, %d waiting, %s%d exhausted%s\n",
		colorDim, colorReset, s.Contingencies,
		colorGreen, s.Converged, colorReset,
		colorYellow, s.Unconverged, colorReset,
		s.Waiting,
		colorRed, s.Exhausted, colorReset)
	if !s.StartedAt.IsZero() {
		cmd.Printf("%sStarted:%s      %s %s(%s ago)%s\n", colorDim, colorReset,
			s.StartedAt.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(s.StartedAt), colorReset)
	}
}

func printResults(cmd *cobra.Command, r api.ResultsResponse) {
	cmd.Println()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTINGENCY\tJOBS\tMEAN SHEDDING %\tTIMEOUTS")
	for _, row := range r.Results {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%d\n", row.ContingencyID, row.Jobs, row.MeanShedding, row.Timeouts)
	}
	w.Flush()
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stateIcon(state string) string {
	switch state {
	case api.StateTerminated:
		return colorGreen + "✓" + colorReset
	case api.StateRunning:
		return colorYellow + "⏳" + colorReset
	case api.StateDraining:
		return colorCyan + "◐" + colorReset
	case api.StateInit:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	icon := stateIcon(state)
	switch state {
	case api.StateTerminated:
		return icon + " " + colorGreen + state + colorReset
	case api.StateRunning:
		return icon + " " + colorYellow + state + colorReset
	case api.StateDraining, api.StateInit:
		return icon + " " + colorCyan + state + colorReset
	default:
		return state
	}
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.Flags().Bool("results", false, "also list per-contingency aggregates from the result sink")
	rootCmd.AddCommand(statusCmd)
}
