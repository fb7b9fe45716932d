package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrNoResult is returned when a job is recorded before it completed.
var ErrNoResult = errors.New("job has no result")

// ResultSink persists completed jobs outside the analysis document.
type ResultSink interface {
	// Record stores one completed job of the given campaign.
	Record(ctx context.Context, campaignID uuid.UUID, job *Job) error

	// CountResults returns how many jobs were recorded for a campaign.
	CountResults(ctx context.Context, campaignID uuid.UUID) (int64, error)

	Close() error
}
