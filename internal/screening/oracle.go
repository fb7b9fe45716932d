// Package screening decides, from analytical stability margins, whether a job
// needs a full dynamic simulation.
package screening

import (
	"math"

	"pdsa/internal/config"
	"pdsa/internal/contingency"
	"pdsa/internal/grid"
	"pdsa/internal/store"

	"go.uber.org/zap"
)

// Check names used in Verdict.Failed.
const (
	CheckVoltage   = "voltage"
	CheckTransient = "transient"
	CheckFrequency = "frequency"
)

// Verdict is the outcome of screening one job.
type Verdict struct {
	// Secure is true when every check passed on both passes.
	Secure bool
	// Simulate is true when the job must still go to the simulator.
	Simulate bool

	MinSCR      float64 // lowest short-circuit ratio in the fault zone, +Inf without inverters
	MinCCTRatio float64 // lowest critical clearing time / clearing time, +Inf without candidates
	RoCoF       float64 // Hz/s after the second pass
	LostMW      float64 // generation expected to trip
	Failed      []string
}

// Oracle runs the analytical checks.
type Oracle struct {
	cfg config.ScreeningConfig
	log *zap.Logger
}

// New returns an oracle for the given thresholds.
func New(cfg config.ScreeningConfig, log *zap.Logger) *Oracle {
	return &Oracle{cfg: cfg, log: log.Named("screening")}
}

// Screen evaluates job against the pre-disturbance snapshot net.
func (o *Oracle) Screen(job *store.Job, net *grid.Network) Verdict {
	if !o.cfg.Enabled {
		return Verdict{Simulate: true, MinSCR: math.Inf(1), MinCCTRatio: math.Inf(1)}
	}

	c := job.Contingency
	v := Verdict{MinSCR: math.Inf(1), MinCCTRatio: math.Inf(1)}
	var zone []grid.Generator
	if c.HasFault() {
		zone = net.GeneratorsNear(c.FaultBus)
	}

	// First pass: the operating point as dispatched.
	failed := map[string]bool{}
	scr := o.voltage(net, c, nil)
	v.MinSCR = scr
	if scr < o.cfg.MinSCR {
		failed[CheckVoltage] = true
	}

	tripped := map[string]bool{}
	if c.ClearingTime > 0 {
		for _, g := range zone {
			if g.Category.InverterBased() || g.P <= 0 {
				continue
			}
			ratio := o.cctRatio(g, c.ClearingTime)
			v.MinCCTRatio = min(v.MinCCTRatio, ratio)
			if ratio < o.cfg.CCTMargin {
				failed[CheckTransient] = true
				tripped[g.ID] = true
			}
		}
	}

	// Second pass: nearby inverters and transiently unstable machines trip.
	if c.ClearingTime > 0 {
		for _, g := range zone {
			if g.Category.InverterBased() && g.P > 0 {
				tripped[g.ID] = true
			}
		}
		if len(tripped) > 0 {
			scr = o.voltage(net, c, tripped)
			v.MinSCR = min(v.MinSCR, scr)
			if scr < o.cfg.MinSCR {
				failed[CheckVoltage] = true
			}
		}
	}

	rocof, lost, ok := o.frequency(net, tripped)
	v.RoCoF, v.LostMW = rocof, lost
	if !ok {
		failed[CheckFrequency] = true
	}

	for _, name := range []string{CheckVoltage, CheckTransient, CheckFrequency} {
		if failed[name] {
			v.Failed = append(v.Failed, name)
		}
	}
	v.Secure = len(v.Failed) == 0
	v.Simulate = !v.Secure || o.cfg.ForceSimulation

	o.log.Debug("screened job",
		zap.Stringer("job", job),
		zap.Bool("secure", v.Secure),
		zap.Strings("failed", v.Failed),
		zap.Float64("min_scr", v.MinSCR),
		zap.Float64("rocof", v.RoCoF),
	)
	return v
}

// voltage returns the lowest short-circuit ratio Sk / P(inverters) over the
// fault bus and its neighbours. Tripped synchronous units no longer contribute
// short-circuit power; inverters are assumed to reconnect after the fault.
func (o *Oracle) voltage(net *grid.Network, c *contingency.Contingency, tripped map[string]bool) float64 {
	worst := math.Inf(1)
	if c.FaultBus == "" {
		return worst
	}
	for _, id := range append([]string{c.FaultBus}, net.Neighbours(c.FaultBus)...) {
		bus, ok := net.Bus(id)
		if !ok {
			continue
		}
		sk := bus.ShortCircuitMVA
		var ibr float64
		for _, g := range net.Generators {
			if g.Bus != id {
				continue
			}
			if g.Category.InverterBased() {
				ibr += max(g.P, 0)
			} else if tripped[g.ID] {
				sk -= g.ShortCircuitMVA
			}
		}
		if ibr <= 0 {
			continue
		}
		worst = min(worst, max(sk, 0)/ibr)
	}
	return worst
}

// cctRatio is the equal-area critical clearing time of g for a bolted fault at
// its terminals, divided by the contingency clearing time.
func (o *Oracle) cctRatio(g grid.Generator, clearing float64) float64 {
	pre := g.TransferLimitMW
	post := g.PostFaultTransferLimitMW
	if post <= 0 {
		post = pre
	}
	if pre <= g.P || post <= g.P || g.SNom <= 0 || g.H <= 0 {
		return 0
	}

	d0 := math.Asin(g.P / pre)
	dmax := math.Pi - math.Asin(g.P/post)
	cosCr := (g.P/post)*(dmax-d0) + math.Cos(dmax)
	if cosCr >= 1 {
		return 0
	}
	dcr := math.Acos(max(cosCr, -1))
	if dcr <= d0 {
		return 0
	}

	pm := g.P / g.SNom
	omega0 := 2 * math.Pi * o.cfg.NominalFrequency
	cct := math.Sqrt(4 * g.H * (dcr - d0) / (omega0 * pm))
	return cct / clearing
}

// frequency checks the initial rate of change of frequency and the reserve of
// the remaining synchronous units after the tripped units are lost.
func (o *Oracle) frequency(net *grid.Network, tripped map[string]bool) (rocof, lost float64, ok bool) {
	var inertia, reserve float64
	for _, g := range net.Generators {
		if tripped[g.ID] {
			lost += max(g.P, 0)
			continue
		}
		if g.Category.InverterBased() || g.P <= 0 {
			continue
		}
		inertia += g.H * g.SNom
		reserve += max(g.PMax-g.P, 0)
	}
	if lost == 0 {
		return 0, 0, true
	}
	if inertia <= 0 {
		return math.Inf(1), lost, false
	}
	rocof = lost * o.cfg.NominalFrequency / (2 * inertia)
	return rocof, lost, rocof <= o.cfg.MaxRoCoF && lost <= reserve
}
