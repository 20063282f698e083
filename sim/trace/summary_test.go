package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalPlans != 0 {
		t.Errorf("expected 0 total plans, got %d", summary.TotalPlans)
	}
	if summary.SucceededCount != 0 || summary.ThwartedCount != 0 || summary.ArrestedCount != 0 {
		t.Error("expected 0 outcomes")
	}
	if summary.MeanSuccessRate != 0 {
		t.Error("expected 0 mean success rate")
	}
	if len(summary.TargetDistribution) != 0 {
		t.Error("expected empty target distribution")
	}
}

func TestSummarize_NilTrace(t *testing.T) {
	summary := Summarize(nil)
	if summary == nil || summary.TargetDistribution == nil {
		t.Fatal("expected non-nil summary with initialized map")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed outcomes, deaths and plants
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})
	st.RecordPlan(PlanRecord{Gang: 0, Target: "bank_robbery", SuccessRate: 40, Outcome: OutcomeSucceeded})
	st.RecordPlan(PlanRecord{Gang: 1, Target: "bank_robbery", SuccessRate: 20, Outcome: OutcomeThwarted})
	st.RecordPlan(PlanRecord{Gang: 1, Target: "blackmail", Outcome: OutcomeArrested})
	st.RecordDeath(DeathRecord{Gang: 1, Agent: 0, Cause: CauseInvestigation})
	st.RecordDeath(DeathRecord{Gang: 1, Agent: -1, Cause: CauseFailedPlan})
	st.RecordPlant(PlantRecord{Accepted: true, Agent: 0})
	st.RecordPlant(PlantRecord{Accepted: false, Agent: -1})
	st.RecordArrest(ArrestRecord{Gang: 1})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts and the mean over resolved plans are correct
	if summary.TotalPlans != 3 {
		t.Errorf("expected 3 plans, got %d", summary.TotalPlans)
	}
	if summary.SucceededCount != 1 || summary.ThwartedCount != 1 || summary.ArrestedCount != 1 {
		t.Errorf("unexpected outcome counts: %+v", summary)
	}
	if summary.MeanSuccessRate != 30 {
		t.Errorf("expected mean success rate 30, got %f", summary.MeanSuccessRate)
	}
	if summary.Executions != 1 || summary.OtherDeaths != 1 {
		t.Errorf("expected 1 execution and 1 other death, got %d and %d", summary.Executions, summary.OtherDeaths)
	}
	if summary.PlantAttempts != 2 || summary.AgentsPlanted != 1 {
		t.Errorf("expected 2 attempts and 1 planted, got %d and %d", summary.PlantAttempts, summary.AgentsPlanted)
	}
	if summary.UniqueTargets != 2 || summary.TargetDistribution["bank_robbery"] != 2 {
		t.Errorf("unexpected target distribution: %v", summary.TargetDistribution)
	}
}
