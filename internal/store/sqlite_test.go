package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/campaignly/learning-engine/internal/config"
	"github.com/campaignly/learning-engine/internal/store"
	"github.com/campaignly/learning-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) store.AgentStateRepository {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "learning.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Repository(t *testing.T) {
	runRepositoryTests(t, newSQLiteStore)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "learning.db")

	s, err := store.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	in := newState("org-1", models.AgentEmailMarketer)
	in.Memory.TaskLearnings["email_single"] = &models.TaskTypeLearning{
		TaskType: "email_single", TotalTasks: 3, SuccessfulTasks: 2, AveragePerformanceScore: 21.5,
	}
	_, err = s.InsertAgentState(ctx, in)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := store.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.FindAgentState(ctx, "org-1", models.AgentEmailMarketer)
	require.NoError(t, err)
	require.Contains(t, got.Memory.TaskLearnings, "email_single")
	assert.Equal(t, 2, got.Memory.TaskLearnings["email_single"].SuccessfulTasks)
	assert.InDelta(t, 21.5, got.Memory.TaskLearnings["email_single"].AveragePerformanceScore, 1e-9)
}

func TestNew_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := store.New(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, mem)
	mem.Close()

	lite, err := store.New(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, lite)
	lite.Close()

	_, err = store.New(ctx, config.StoreConfig{Driver: "cassandra"})
	assert.Error(t, err)
}
