package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBeginAndCurrent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "frobelworkscheduler", PhasePendingDelete, "delete issued")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := store.Current(ctx, "frobelworkscheduler")
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, PhasePendingDelete, run.Phase)
	assert.Equal(t, "delete issued", run.Detail)
}

func TestAdvanceThroughPhases(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "frobelworkscheduler", PhasePendingDelete, "")
	require.NoError(t, err)

	for _, phase := range []Phase{PhaseDeleted, PhaseCooldownElapsed, PhaseRestoring} {
		require.NoError(t, store.Advance(ctx, id, phase, ""))
		run, err := store.Current(ctx, "frobelworkscheduler")
		require.NoError(t, err)
		assert.Equal(t, phase, run.Phase)
	}

	// Online is terminal: Current no longer returns the run.
	require.NoError(t, store.Advance(ctx, id, PhaseOnline, "restore complete"))
	_, err = store.Current(ctx, "frobelworkscheduler")
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestCurrentNoRun(t *testing.T) {
	store := openStore(t)

	_, err := store.Current(context.Background(), "frobelworkscheduler")
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestAdvanceUnknownRun(t *testing.T) {
	store := openStore(t)

	err := store.Advance(context.Background(), "no-such-id", PhaseDeleted, "")
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestCurrentReturnsLatest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.Begin(ctx, "frobelworkscheduler", PhaseRestoring, "")
	require.NoError(t, err)
	require.NoError(t, store.Advance(ctx, first, PhaseOnline, ""))

	time.Sleep(5 * time.Millisecond)

	second, err := store.Begin(ctx, "frobelworkscheduler", PhaseCooldownElapsed, "")
	require.NoError(t, err)

	run, err := store.Current(ctx, "frobelworkscheduler")
	require.NoError(t, err)
	assert.Equal(t, second, run.ID)
}

func TestList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Begin(ctx, "frobelworkscheduler", PhaseRestoring, "")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.Begin(ctx, "otherdb", PhasePendingDelete, "")
	require.NoError(t, err)

	runs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "otherdb", runs[0].TargetDB)
}

func TestPhaseTerminal(t *testing.T) {
	assert.True(t, PhaseOnline.Terminal())
	for _, p := range []Phase{PhasePendingDelete, PhaseDeleted, PhaseCooldownElapsed, PhaseRestoring} {
		assert.False(t, p.Terminal(), string(p))
	}
}
