package simulation

import "pdsa/internal/config"

// Cost converts a load-shedding percentage into the monetary consequence of one
// event: unserved energy valued at the value of lost load.
func Cost(loadShedding, totalLoadMW float64, cfg config.CostConfig) float64 {
	share := min(max(loadShedding, 0), 100) / 100
	return share * totalLoadMW * cfg.OutageHours * cfg.ValueOfLostLoad
}
