package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"pdsa/internal/contingency"
	"pdsa/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func completedJob() *store.Job {
	return &store.Job{
		ID:       7,
		StaticID: "snap-0042",
		Seed:     18446744073709551615,
		Contingency: &contingency.Contingency{
			ID:   "N1_L1_NORMAL",
			Kind: contingency.KindN1,
			Events: []contingency.Event{
				{Time: 1.0, Kind: contingency.EventFault, Element: "L1"},
				{Time: 1.1, Kind: contingency.EventDisconnect, Element: "L1"},
			},
		},
		Elapsed: 1500 * time.Millisecond,
		Done:    true,
		Result:  store.Result{LoadShedding: 12.5, Cost: 1875},
	}
}

func TestRecord_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	campaignID := uuid.New()
	job := completedJob()

	mock.ExpectExec(`INSERT INTO job_results`).
		WithArgs(campaignID, int64(7), "N1_L1_NORMAL", "snap-0042", "18446744073709551615",
			pq.Array([]string{"L1"}), 12.5, 1875.0, int64(1500), false, false, false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Record(context.Background(), campaignID, job); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRecord_Incomplete(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	job := completedJob()
	job.Done = false

	err := s.Record(context.Background(), uuid.New(), job)
	if !errors.Is(err, store.ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database calls: %v", err)
	}
}

func TestRecord_DBError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO job_results`).WillReturnError(errors.New("connection reset"))

	if err := s.Record(context.Background(), uuid.New(), completedJob()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestCountResults(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	campaignID := uuid.New()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM job_results WHERE campaign_id = \$1`).
		WithArgs(campaignID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	n, err := s.CountResults(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("CountResults failed: %v", err)
	}
	if n != 42 {
		t.Errorf("got %d, want 42", n)
	}
}

func TestContingencyStats(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	campaignID := uuid.New()
	mock.ExpectQuery(`SELECT contingency_id`).
		WithArgs(campaignID).
		WillReturnRows(sqlmock.NewRows([]string{"contingency_id", "count", "avg", "timeouts"}).
			AddRow("N1_L1_DELAYED", int64(3), 40.0, int64(1)).
			AddRow("N1_L1_NORMAL", int64(10), 2.5, int64(0)))

	stats, err := s.ContingencyStats(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("ContingencyStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d stats, want 2", len(stats))
	}
	if stats[0].ContingencyID != "N1_L1_DELAYED" || stats[0].Timeouts != 1 || stats[0].MeanShedding != 40 {
		t.Errorf("unexpected first row: %+v", stats[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
