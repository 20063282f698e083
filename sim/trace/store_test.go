package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RunLifecycle(t *testing.T) {
	// GIVEN a fresh results database
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()

	// WHEN a run is begun, traced and finished
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.BeginRun(ctx, RunRecord{ID: "run-1", StartedAt: start, Seed: 42, NumGangs: 3, Mode: "in-process"}))

	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})
	st.RecordPlan(PlanRecord{Gang: 0, Cycle: 1, Target: "art_theft", Outcome: OutcomeSucceeded})
	st.RecordPlan(PlanRecord{Gang: 1, Cycle: 1, Target: "art_theft", Outcome: OutcomeThwarted})
	st.RecordPlan(PlanRecord{Gang: 1, Cycle: 2, Target: "blackmail", Outcome: OutcomeThwarted})
	st.RecordDeath(DeathRecord{Gang: 1, Member: 2, Agent: 0, Cause: CauseInvestigation})
	st.RecordArrest(ArrestRecord{Officer: 1, Gang: 1, Countdown: 9})
	require.NoError(t, store.SaveTrace(ctx, "run-1", st))

	require.NoError(t, store.FinishRun(ctx, RunRecord{
		ID: "run-1", FinishedAt: start.Add(time.Minute), EndReason: "max_thwarted_plans",
		SuccessfulPlans: 1, ThwartedPlans: 2, ExecutedAgents: 1, ElapsedTicks: 600,
	}))

	// THEN the run and its events can be read back
	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "max_thwarted_plans", runs[0].EndReason)
	assert.Equal(t, 2, runs[0].ThwartedPlans)
	assert.True(t, start.Equal(runs[0].StartedAt))

	outcomes, err := store.OutcomeCounts(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{OutcomeSucceeded: 1, OutcomeThwarted: 2}, outcomes)

	events, err := store.EventCounts(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, events["deaths"])
	assert.Equal(t, 1, events["arrests"])
	assert.Equal(t, 0, events["plants"])
}

func TestStore_RecorderInsertsLive(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(filepath.Join(t.TempDir(), "live.db"))
	require.NoError(t, err)
	defer store.Close()

	rec := store.Recorder("run-live")
	rec.RecordPlant(PlantRecord{Officer: 0, Gang: 0, Attempt: 1, Accepted: true, Agent: 0})
	rec.RecordReport(ReportRecord{Officer: 0, Agent: 0, Knowledge: 0.9, AboveThreshold: true})

	events, err := store.EventCounts(ctx, "run-live")
	require.NoError(t, err)
	assert.Equal(t, 1, events["plants"])
	assert.Equal(t, 1, events["reports"])
}

func TestOpenStore_EmptyPath(t *testing.T) {
	_, err := OpenStore("")
	assert.Error(t, err)
}
