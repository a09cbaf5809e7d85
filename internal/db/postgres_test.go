package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// Runs against a live database only when FAIRNESS_TEST_DATABASE_URL is set.
func testStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("FAIRNESS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FAIRNESS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.InitSchema(ctx))
	return store
}

func TestSaveRunRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := models.Run{
		ID:          uuid.NewString(),
		Dataset:     "compas",
		StartedAt:   time.Now().UTC().Truncate(time.Microsecond),
		Classifiers: []string{"random", "ANN"},
		RowCount:    2,
	}
	rows := []models.EvaluationRow{
		{Classifier: "random", Feature: "sex", MajorityLabel: "Male", MinorityLabel: "Female",
			MajorityCount: 2, MinorityCount: 2, A: 1, B: 1, C: 1, D: 1, LikelihoodRatio: 1},
		{Classifier: "ANN", Feature: "age", MajorityLabel: "30", MinorityLabel: "30",
			MajorityCount: 2, MinorityCount: 1, A: 1, B: 1, D: 1, HasDisparateImpact: true},
	}
	require.NoError(t, store.SaveRun(ctx, run, rows))

	got, err := store.GetRunRows(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Classifiers, stored.Classifiers)
	assert.Empty(t, stored.Failures)

	runs, total, err := store.ListRuns(ctx, 1, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	assert.NotEmpty(t, runs)
}

func TestGetRunRows_Unknown(t *testing.T) {
	store := testStore(t)
	_, err := store.GetRunRows(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRunNotFound)
}
