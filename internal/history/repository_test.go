package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/haunt-core/internal/history"
	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/database"
	"github.com/nerrad567/haunt-core/internal/sequence"
	_ "github.com/nerrad567/haunt-core/migrations"
)

func newRepo(t *testing.T) *history.SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "history.db"), WALMode: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return history.NewSQLiteRepository(db.DB)
}

var base = time.Date(2025, 10, 31, 20, 0, 0, 0, time.UTC)

func outcome(id, seq string, status sequence.Status, offset time.Duration) sequence.Outcome {
	return sequence.Outcome{
		RunID:     id,
		Sequence:  seq,
		Status:    status,
		Executed:  5,
		StartedAt: base.Add(offset),
		Duration:  12500 * time.Millisecond,
	}
}

func TestRecordAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	o := outcome("run-1", "trigger", sequence.StatusAborted, 0)
	o.Reason = sequence.ReasonMaxDuration
	o.Skipped = 2
	o.Failures = []sequence.ActionFailure{{
		Index:  1,
		Kind:   sequence.KindRelay,
		Action: "relay smoke on",
		Error:  "hardware: device unavailable",
		Err:    errors.New("hardware: device unavailable"),
	}}
	require.NoError(t, repo.Record(ctx, o, "sensor"))

	run, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "trigger", run.Sequence)
	assert.Equal(t, "sensor", run.Source)
	assert.Equal(t, sequence.StatusAborted, run.Status)
	assert.Equal(t, sequence.ReasonMaxDuration, run.Reason)
	assert.Equal(t, 5, run.Executed)
	assert.Equal(t, 2, run.Skipped)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 12500*time.Millisecond, run.Duration)
	assert.True(t, base.Equal(run.StartedAt), "started_at = %v", run.StartedAt)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "relay smoke on", run.Failures[0].Action)
	assert.Equal(t, sequence.KindRelay, run.Failures[0].Kind)
}

func TestGet_NotFound(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestRecord_DuplicateID(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	o := outcome("run-1", "trigger", sequence.StatusCompleted, 0)
	require.NoError(t, repo.Record(ctx, o, "sensor"))
	assert.Error(t, repo.Record(ctx, o, "sensor"))
}

func TestRecord_MissingID(t *testing.T) {
	repo := newRepo(t)
	assert.Error(t, repo.Record(context.Background(), sequence.Outcome{Sequence: "setup"}, "startup"))
}

func TestList(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, outcome("a", "setup", sequence.StatusCompleted, 0), "startup"))
	require.NoError(t, repo.Record(ctx, outcome("b", "trigger", sequence.StatusCompleted, time.Minute), "sensor"))
	require.NoError(t, repo.Record(ctx, outcome("c", "trigger", sequence.StatusPartial, 2*time.Minute), "api"))
	require.NoError(t, repo.Record(ctx, outcome("d", "trigger", sequence.StatusCompleted, 2*time.Minute+time.Millisecond), "mqtt"))

	t.Run("most recent first", func(t *testing.T) {
		res, err := repo.List(ctx, history.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Total)
		assert.Equal(t, 50, res.Limit)
		require.Len(t, res.Runs, 4)
		assert.Equal(t, []string{"d", "c", "b", "a"}, ids(res.Runs))
	})

	t.Run("filters", func(t *testing.T) {
		res, err := repo.List(ctx, history.Filter{Sequence: "trigger", Status: "completed"})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Equal(t, []string{"d", "b"}, ids(res.Runs))

		res, err = repo.List(ctx, history.Filter{Source: "api"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, ids(res.Runs))
	})

	t.Run("pagination", func(t *testing.T) {
		res, err := repo.List(ctx, history.Filter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Total)
		assert.Equal(t, []string{"c", "b"}, ids(res.Runs))
	})

	t.Run("limit clamped", func(t *testing.T) {
		res, err := repo.List(ctx, history.Filter{Limit: 1000, Offset: -3})
		require.NoError(t, err)
		assert.Equal(t, 200, res.Limit)
		assert.Equal(t, 0, res.Offset)
	})

	t.Run("no matches", func(t *testing.T) {
		res, err := repo.List(ctx, history.Filter{Status: "aborted"})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Total)
		assert.NotNil(t, res.Runs)
		assert.Empty(t, res.Runs)
	})
}

func ids(runs []history.Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
