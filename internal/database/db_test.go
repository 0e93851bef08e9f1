package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"aptoswarm/internal/models"
)

// setupTestDB starts a PostgreSQL container and applies the schema
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("aptoswarm"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db, "migrations/001_schema.sql"))
	// applying twice is a no-op
	require.NoError(t, RunMigrations(db, "migrations/001_schema.sql"))

	return db
}

func TestJournal_RunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	delay := 2.5
	run := &models.Run{
		RunID:     uuid.New(),
		Strategy:  models.StrategyPool,
		Wallets:   2,
		Tasks:     6,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
		Settings:  models.RunSettings{Strategy: models.StrategyPool, MaxWorkers: 2, InterWalletDelaySec: &delay},
	}
	require.NoError(t, db.InsertRun(ctx, run))

	hash := "0xabc"
	results := []*models.TaskResult{
		{
			RunID: run.RunID, WalletID: uuid.New(), WalletAddress: "0x1", TaskID: uuid.New(),
			ModuleName: models.KindSwap, Status: models.TaskStatusSuccess, TxHash: &hash,
			ExecutionInfo: "Executed successfully", CompletedAt: time.Now().UTC(),
		},
		{
			RunID: run.RunID, WalletID: uuid.New(), WalletAddress: "0x2", TaskID: uuid.New(),
			ModuleName: models.KindSwap, Virtual: true, Status: models.TaskStatusSkipped,
			ExecutionInfo: "forward task did not succeed", CompletedAt: time.Now().UTC(),
		},
	}
	require.NoError(t, db.InsertTaskResult(ctx, results[0]))
	require.NoError(t, db.InsertTaskResults(ctx, results[1:]))
	assert.NotZero(t, results[0].ID)
	assert.Greater(t, results[1].ID, results[0].ID)

	finished := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	run.FinishedAt = &finished
	require.NoError(t, db.FinishRun(ctx, run))

	got, err := db.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 2, got.Settings.MaxWorkers)
	require.NotNil(t, got.Settings.InterWalletDelaySec)
	assert.Equal(t, 2.5, *got.Settings.InterWalletDelaySec)

	stored, err := db.ListTaskResults(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.NotNil(t, stored[0].TxHash)
	assert.Equal(t, hash, *stored[0].TxHash)
	assert.Nil(t, stored[1].TxHash)
	assert.True(t, stored[1].Virtual)

	counts, err := db.CountResultsByStatus(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.TaskStatusSuccess])
	assert.Equal(t, 1, counts[models.TaskStatusSkipped])

	runs, err := db.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)

	missing, err := db.GetRun(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, db.FinishRun(ctx, &models.Run{RunID: uuid.New(), Status: models.RunStatusStopped}))
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.DSN())
}
