package cmd

import (
	"fmt"
	"text/tabwriter"

	"pdsa/internal/config"
	"pdsa/internal/contingency"
	"pdsa/internal/grid"

	"github.com/spf13/cobra"
)

var contingenciesCmd = &cobra.Command{
	Use:   "contingencies [network_file]",
	Short: "Print the contingency catalog of a network",
	Long: `Build the contingency catalog the controller would run for a network snapshot: the base
case, one normal and one delayed clearing per N-1 circuit group and, when enabled, the
stuck-breaker N-2 events. Catalog settings come from the campaign config (--campaign)
or the defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogCfg := config.DefaultCatalog()
		if path, _ := cmd.Flags().GetString("campaign"); path != "" {
			cfg, err := config.Load(path)
			if err != nil {
				cmd.Printf("Failed to load campaign config: %v\n", err)
				return err
			}
			catalogCfg = cfg.Catalog
		}
		if noN2, _ := cmd.Flags().GetBool("no-n2"); noN2 {
			catalogCfg.EnableN2 = false
		}

		net, err := grid.ReadFile(args[0])
		if err != nil {
			cmd.Printf("Failed to read network: %v\n", err)
			return err
		}
		catalog, err := contingency.Build(net, catalogCfg)
		if err != nil {
			cmd.Printf("Failed to build catalog: %v\n", err)
			return err
		}

		printCatalog(cmd, catalog)
		return nil
	},
}

func printCatalog(cmd *cobra.Command, catalog []*contingency.Contingency) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tFREQUENCY /yr\tCLEARING s\tFAULT BUS\tDISCONNECTED")
	var total float64
	counts := make(map[contingency.Kind]int)
	for _, c := range catalog {
		clearing, fault := "-", "-"
		if c.HasFault() {
			clearing = fmt.Sprintf("%.3f", c.ClearingTime)
			fault = c.FaultBus
		}
		fmt.Fprintf(w, "%s\t%s\t%.4g\t%s\t%s\t%v\n", c.ID, c.Kind, c.Frequency, clearing, fault, c.Disconnected())
		total += c.Frequency
		counts[c.Kind]++
	}
	w.Flush()

	cmd.Printf("\n%d contingencies (%d N-1, %d N-2), total frequency %.4g /yr\n",
		len(catalog), counts[contingency.KindN1], counts[contingency.KindN2], total)
}

func init() {
	contingenciesCmd.Flags().String("campaign", "", "campaign config file providing the catalog section")
	contingenciesCmd.Flags().Bool("no-n2", false, "skip N-2 contingencies")
	rootCmd.AddCommand(contingenciesCmd)
}
