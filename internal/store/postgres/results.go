package postgres

import (
	"context"
	"strconv"

	"pdsa/internal/store"
	"pdsa/pkg/api"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var _ store.ResultSink = (*Store)(nil)

// Record inserts one completed job. Recording the same job twice is a no-op.
func (s *Store) Record(ctx context.Context, campaignID uuid.UUID, job *store.Job) error {
	if !job.Done {
		return errors.Wrapf(store.ErrNoResult, "cannot record %s", job)
	}

	query := `
		INSERT INTO job_results (campaign_id, job_id, contingency_id, static_id, seed, disconnected,
			load_shedding, cost, elapsed_ms, timed_out, screened, uncertain)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (campaign_id, job_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		campaignID,
		job.ID,
		job.Contingency.ID,
		job.StaticID,
		// NUMERIC column: uint64 seeds above MaxInt64 are not valid driver values.
		strconv.FormatUint(job.Seed, 10),
		pq.Array(job.Contingency.Disconnected()),
		job.Result.LoadShedding,
		job.Result.Cost,
		job.Elapsed.Milliseconds(),
		job.Result.TimedOut(),
		job.Result.Screened,
		job.Uncertain(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record %s", job)
	}
	return nil
}

// CountResults returns how many jobs were recorded for a campaign.
func (s *Store) CountResults(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_results WHERE campaign_id = $1`, campaignID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count results")
	}
	return n, nil
}

// ContingencyStats aggregates the recorded results of a campaign, timeouts excluded from the mean.
func (s *Store) ContingencyStats(ctx context.Context, campaignID uuid.UUID) ([]api.ContingencyResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT contingency_id,
			COUNT(*),
			COALESCE(AVG(LEAST(load_shedding, 100)) FILTER (WHERE NOT timed_out), 0),
			COUNT(*) FILTER (WHERE timed_out)
		FROM job_results
		WHERE campaign_id = $1
		GROUP BY contingency_id
		ORDER BY contingency_id
	`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "contingency stats query failed")
	}
	defer rows.Close()

	var stats []api.ContingencyResult
	for rows.Next() {
		var st api.ContingencyResult
		if err := rows.Scan(&st.ContingencyID, &st.Jobs, &st.MeanShedding, &st.Timeouts); err != nil {
			return nil, errors.Wrap(err, "contingency stats scan failed")
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "contingency stats rows error")
	}
	return stats, nil
}
