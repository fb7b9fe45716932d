package scheduler

import (
	"time"

	"pdsa/pkg/api"
)

// Status returns the latest published campaign snapshot. Safe for concurrent use.
func (m *Master) Status() api.CampaignStatus {
	return *m.status.Load()
}

// publish recomputes the status snapshot from master-owned state. Convergence
// is as classified by the last round.
func (m *Master) publish() {
	s := &api.CampaignStatus{
		CampaignID:    m.opts.CampaignID.String(),
		State:         m.state.String(),
		StopReason:    m.reason,
		TotalRisk:     m.totalRisk,
		Threshold:     m.threshold,
		Rounds:        m.rounds,
		JobsCompleted: m.completed,
		JobsInFlight:  m.inFlight,
		QueueDepth:    m.pending.Len(),
		FollowUps:     m.followUps.Len(),
		Contingencies: len(m.tracked),
		StartedAt:     m.started,
		UpdatedAt:     time.Now(),
	}
	for _, t := range m.tracked {
		switch {
		case t.exhausted:
			s.Exhausted++
		case t.waiting():
			s.Waiting++
		case t.converged:
			s.Converged++
		default:
			s.Unconverged++
		}
	}
	m.status.Store(s)
}
