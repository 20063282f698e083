package trace

import "sync"

// TraceLevel controls the verbosity of event tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelPlans captures plan outcomes, deaths and arrests.
	TraceLevelPlans TraceLevel = "plans"
	// TraceLevelAll additionally captures every plant attempt and report.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:  true,
	TraceLevelPlans: true,
	TraceLevelAll:   true,
	"":              true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects event records in memory.
//
// Thread-safety: all methods are safe for concurrent use.
type SimulationTrace struct {
	Config TraceConfig

	mu      sync.Mutex
	Plans   []PlanRecord
	Deaths  []DeathRecord
	Plants  []PlantRecord
	Reports []ReportRecord
	Arrests []ArrestRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:  config,
		Plans:   make([]PlanRecord, 0),
		Deaths:  make([]DeathRecord, 0),
		Plants:  make([]PlantRecord, 0),
		Reports: make([]ReportRecord, 0),
		Arrests: make([]ArrestRecord, 0),
	}
}

func (st *SimulationTrace) enabled(detail bool) bool {
	switch st.Config.Level {
	case TraceLevelAll:
		return true
	case TraceLevelPlans:
		return !detail
	}
	return false
}

// RecordPlan appends a plan record.
func (st *SimulationTrace) RecordPlan(r PlanRecord) {
	if !st.enabled(false) {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Plans = append(st.Plans, r)
}

// RecordDeath appends a death record.
func (st *SimulationTrace) RecordDeath(r DeathRecord) {
	if !st.enabled(false) {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Deaths = append(st.Deaths, r)
}

// RecordArrest appends an arrest record.
func (st *SimulationTrace) RecordArrest(r ArrestRecord) {
	if !st.enabled(false) {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Arrests = append(st.Arrests, r)
}

// RecordPlant appends a plant record (TraceLevelAll only).
func (st *SimulationTrace) RecordPlant(r PlantRecord) {
	if !st.enabled(true) {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Plants = append(st.Plants, r)
}

// RecordReport appends a report record (TraceLevelAll only).
func (st *SimulationTrace) RecordReport(r ReportRecord) {
	if !st.enabled(true) {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Reports = append(st.Reports, r)
}

// Snapshot returns a copy of the trace that is safe to read while recording continues.
func (st *SimulationTrace) Snapshot() *SimulationTrace {
	st.mu.Lock()
	defer st.mu.Unlock()
	return &SimulationTrace{
		Config:  st.Config,
		Plans:   append([]PlanRecord(nil), st.Plans...),
		Deaths:  append([]DeathRecord(nil), st.Deaths...),
		Plants:  append([]PlantRecord(nil), st.Plants...),
		Reports: append([]ReportRecord(nil), st.Reports...),
		Arrests: append([]ArrestRecord(nil), st.Arrests...),
	}
}

// Multi fans events out to several recorders.
func Multi(recorders ...Recorder) Recorder {
	return multi(recorders)
}

type multi []Recorder

func (m multi) RecordPlan(r PlanRecord) {
	for _, rec := range m {
		rec.RecordPlan(r)
	}
}

func (m multi) RecordDeath(r DeathRecord) {
	for _, rec := range m {
		rec.RecordDeath(r)
	}
}

func (m multi) RecordPlant(r PlantRecord) {
	for _, rec := range m {
		rec.RecordPlant(r)
	}
}

func (m multi) RecordReport(r ReportRecord) {
	for _, rec := range m {
		rec.RecordReport(r)
	}
}

func (m multi) RecordArrest(r ArrestRecord) {
	for _, rec := range m {
		rec.RecordArrest(r)
	}
}
