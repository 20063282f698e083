// Package trace records simulation events for post-run analysis.
// This package has no dependencies on the shared region or the message channel —
// it stores pure data types.
package trace

// Plan outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeThwarted  = "thwarted"
	OutcomeArrested  = "arrested" // closed by police imprisonment before resolution
)

// PlanRecord captures one resolved plan cycle of a gang.
type PlanRecord struct {
	Gang         int     `json:"gang"`
	Cycle        int     `json:"cycle"`
	Tick         int     `json:"tick"`
	Target       string  `json:"target"`
	SuccessRate  float64 `json:"success_rate"`
	Participants int     `json:"participants"`
	Outcome      string  `json:"outcome"`
}

// Causes of member death.
const (
	CauseInvestigation = "investigation"
	CauseFailedPlan    = "failed_plan"
)

// DeathRecord captures a member killed during a gang's reaction phase.
// Agent is -1 for members that were not informants.
type DeathRecord struct {
	Gang   int    `json:"gang"`
	Member int    `json:"member"`
	Agent  int    `json:"agent"`
	Tick   int    `json:"tick"`
	Cause  string `json:"cause"`
}

// PlantRecord captures one informant planting attempt by an officer.
// Agent is -1 when the gang refused or never replied.
type PlantRecord struct {
	Officer  int  `json:"officer"`
	Gang     int  `json:"gang"`
	Attempt  int  `json:"attempt"`
	Tick     int  `json:"tick"`
	Accepted bool `json:"accepted"`
	Agent    int  `json:"agent"`
}

// ReportRecord captures a knowledge report received by an officer.
type ReportRecord struct {
	Officer        int     `json:"officer"`
	Agent          int     `json:"agent"`
	Tick           int     `json:"tick"`
	Knowledge      float64 `json:"knowledge"`
	AboveThreshold bool    `json:"above_threshold"`
}

// ArrestRecord captures a successful imprisonment roll.
type ArrestRecord struct {
	Officer     int     `json:"officer"`
	Gang        int     `json:"gang"`
	Tick        int     `json:"tick"`
	Countdown   int     `json:"countdown"`
	Probability float64 `json:"probability"`
	Knowledge   float64 `json:"knowledge"`
}

// Recorder receives simulation events. Implementations must be safe for
// concurrent use: gang and officer goroutines record independently.
type Recorder interface {
	RecordPlan(PlanRecord)
	RecordDeath(DeathRecord)
	RecordPlant(PlantRecord)
	RecordReport(ReportRecord)
	RecordArrest(ArrestRecord)
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) RecordPlan(PlanRecord)     {}
func (discard) RecordDeath(DeathRecord)   {}
func (discard) RecordPlant(PlantRecord)   {}
func (discard) RecordReport(ReportRecord) {}
func (discard) RecordArrest(ArrestRecord) {}
