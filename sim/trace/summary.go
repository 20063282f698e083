package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalPlans         int
	SucceededCount     int
	ThwartedCount      int
	ArrestedCount      int
	MeanSuccessRate    float64 // over resolved (non-arrested) plans
	Executions         int
	OtherDeaths        int
	PlantAttempts      int
	AgentsPlanted      int
	Reports            int
	Arrests            int
	UniqueTargets      int
	TargetDistribution map[string]int // target name → number of plans against it
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}
	st = st.Snapshot()

	summary.TotalPlans = len(st.Plans)
	resolved := 0
	totalRate := 0.0
	for _, p := range st.Plans {
		summary.TargetDistribution[p.Target]++
		switch p.Outcome {
		case OutcomeSucceeded:
			summary.SucceededCount++
		case OutcomeThwarted:
			summary.ThwartedCount++
		case OutcomeArrested:
			summary.ArrestedCount++
			continue
		}
		resolved++
		totalRate += p.SuccessRate
	}
	if resolved > 0 {
		summary.MeanSuccessRate = totalRate / float64(resolved)
	}

	for _, d := range st.Deaths {
		if d.Cause == CauseInvestigation {
			summary.Executions++
		} else {
			summary.OtherDeaths++
		}
	}

	summary.PlantAttempts = len(st.Plants)
	for _, p := range st.Plants {
		if p.Accepted {
			summary.AgentsPlanted++
		}
	}
	summary.Reports = len(st.Reports)
	summary.Arrests = len(st.Arrests)
	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
