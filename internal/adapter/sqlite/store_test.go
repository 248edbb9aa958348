package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

func setupTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func summary(runID, jobID string, started time.Time) domain.Summary {
	return domain.Summary{
		RunID:        runID,
		JobID:        jobID,
		ReportPath:   "/data/gfroad.rpt",
		SourcePath:   "/data/nodes.geojson",
		OutputPath:   "/data/nodes.geojson",
		DepthColumn:  domain.DepthColumnMax,
		DepthRecords: 5,
		FloodRecords: 4,
		DepthMatched: 4,
		FloodMatched: 4,
		ClassMatched: 4,
		Classified:   true,
		Breaks:       []float64{0.001, 0.217, 0.982, 1.945},
		Ranges:       []string{"0.001—0.217", "0.217—0.982", "0.982—1.945"},
		GVF:          0.97,
		Status:       domain.StatusSucceeded,
		StartedAt:    started,
		FinishedAt:   started.Add(1500 * time.Millisecond),
	}
}

func TestRunStore_RecordAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	want := summary("run-1", "job-1", time.Date(2026, 6, 14, 9, 30, 0, 0, time.UTC))
	require.NoError(t, s.Record(ctx, want))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStore_GetUnknown(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunStore_RecordReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 14, 9, 30, 0, 0, time.UTC)

	first := summary("run-1", "job-1", base)
	require.NoError(t, s.Record(ctx, first))

	failed := first
	failed.Status = domain.StatusFailed
	failed.Error = "report missing"
	require.NoError(t, s.Record(ctx, failed))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "report missing", got.Error)

	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunStore_List(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, summary("run-a", "job-1", base)))
	require.NoError(t, s.Record(ctx, summary("run-b", "job-2", base.Add(time.Minute))))
	require.NoError(t, s.Record(ctx, summary("run-c", "job-1", base.Add(2*time.Minute))))
	require.NoError(t, s.Record(ctx, summary("run-d", "", base.Add(3*time.Minute))))

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "run-d", all[0].RunID, "most recent first")
	assert.Equal(t, "run-a", all[3].RunID)

	limited, err := s.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	job1, err := s.List(ctx, "job-1", 10)
	require.NoError(t, err)
	require.Len(t, job1, 2)
	assert.Equal(t, "run-c", job1[0].RunID)
	assert.Equal(t, "run-a", job1[1].RunID)

	none, err := s.List(ctx, "job-9", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestRunStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, summary("run-1", "job-1", time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
}
