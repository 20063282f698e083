package trace

import (
	"sync"
	"testing"
)

func TestSimulationTrace_RecordPlan_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for plans
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelPlans})

	// WHEN a plan record is recorded
	st.RecordPlan(PlanRecord{Gang: 1, Cycle: 3, Target: "art_theft", SuccessRate: 42.5, Outcome: OutcomeSucceeded})

	// THEN the trace contains one plan record with correct data
	if len(st.Plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(st.Plans))
	}
	if st.Plans[0].Target != "art_theft" {
		t.Errorf("expected target art_theft, got %s", st.Plans[0].Target)
	}
	if st.Plans[0].Outcome != OutcomeSucceeded {
		t.Errorf("expected outcome succeeded, got %s", st.Plans[0].Outcome)
	}
}

func TestSimulationTrace_LevelFiltersDetailRecords(t *testing.T) {
	// GIVEN a trace at plans level
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelPlans})

	// WHEN detail records are recorded alongside an arrest
	st.RecordPlant(PlantRecord{Officer: 0, Gang: 0, Accepted: true})
	st.RecordReport(ReportRecord{Officer: 0, Knowledge: 0.9})
	st.RecordArrest(ArrestRecord{Officer: 0, Gang: 0, Countdown: 8})

	// THEN only the arrest is kept
	if len(st.Plants) != 0 || len(st.Reports) != 0 {
		t.Errorf("expected no plant/report records at plans level, got %d/%d", len(st.Plants), len(st.Reports))
	}
	if len(st.Arrests) != 1 {
		t.Errorf("expected 1 arrest, got %d", len(st.Arrests))
	}
}

func TestSimulationTrace_NoneLevelRecordsNothing(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelNone})
	st.RecordPlan(PlanRecord{Gang: 0})
	st.RecordDeath(DeathRecord{Gang: 0})

	if len(st.Plans) != 0 || len(st.Deaths) != 0 {
		t.Error("expected nothing recorded at level none")
	}
}

func TestSimulationTrace_ConcurrentRecording(t *testing.T) {
	// GIVEN a trace shared by many recording goroutines
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})

	// WHEN 10 goroutines each record 100 plans
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(gang int) {
			defer wg.Done()
			for c := 0; c < 100; c++ {
				st.RecordPlan(PlanRecord{Gang: gang, Cycle: c})
			}
		}(g)
	}
	wg.Wait()

	// THEN no record is lost
	if got := len(st.Snapshot().Plans); got != 1000 {
		t.Errorf("expected 1000 plans, got %d", got)
	}
}

func TestMulti_FansOut(t *testing.T) {
	a := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})
	b := NewSimulationTrace(TraceConfig{Level: TraceLevelAll})
	rec := Multi(a, b, Discard)

	rec.RecordDeath(DeathRecord{Gang: 2, Cause: CauseInvestigation})

	if len(a.Deaths) != 1 || len(b.Deaths) != 1 {
		t.Errorf("expected both traces to hold the death, got %d and %d", len(a.Deaths), len(b.Deaths))
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"", true},
		{"none", true},
		{"plans", true},
		{"all", true},
		{"decisions", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.want {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
