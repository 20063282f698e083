package region

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/psync"
)

// Every record below is a fixed-size value made only of fixed-width integers,
// floats and arrays, with each field on its natural alignment and every record
// size a multiple of 8. The bytes therefore mean the same thing in every process
// running the same binary, and records can be viewed in place over a mapping.

// TargetNameLen is the fixed width of a target name in the shared region.
const TargetNameLen = 32

// TargetRecord is one row of the shared target table.
// Heat is mutated under the GAME_STATS semaphore.
type TargetRecord struct {
	Name    [TargetNameLen]byte
	Heat    float64
	Weights [sim.NumAttributes]float64
}

// Officer states as published in OfficerRecord.State.
const (
	OfficerMonitoring int32 = 0
	OfficerImprisoned int32 = 1
)

// OfficerRecord is the police force's published view of one officer, for readers
// outside the police process. Only the police process writes it.
type OfficerRecord struct {
	knowledge    uint64 // float64 bits
	ActiveAgents int32
	State        int32
}

// Knowledge returns the officer's published knowledge level.
func (o *OfficerRecord) Knowledge() float64 {
	return math.Float64frombits(atomic.LoadUint64(&o.knowledge))
}

// Publish stores the officer snapshot.
func (o *OfficerRecord) Publish(knowledge float64, activeAgents int, state int32) {
	atomic.StoreUint64(&o.knowledge, math.Float64bits(knowledge))
	atomic.StoreInt32(&o.ActiveAgents, int32(activeAgents))
	atomic.StoreInt32(&o.State, state)
}

// StateHeader is the simulation-wide record at offset 0 of the region.
//
// Counters are written under the GAME_STATS semaphore and always through atomic
// operations, so lock-free readers (the owner's condition poller) see whole values.
type StateHeader struct {
	magic    uint32
	version  uint32
	size     uint64
	NumGangs int32
	GangSize int32 // per-gang member slot capacity (max_gang_size)

	successfulPlans int32
	thwartedPlans   int32
	executedAgents  int32
	elapsed         int32
	shutdown        uint32
	_               uint32

	arrested [sim.MaxGangsLimit]int32
	Officers [sim.MaxGangsLimit]OfficerRecord
	Targets  [sim.NumTargets]TargetRecord
}

// SuccessfulPlans returns the global count of successful plans.
func (s *StateHeader) SuccessfulPlans() int { return int(atomic.LoadInt32(&s.successfulPlans)) }

// ThwartedPlans returns the global count of thwarted plans.
func (s *StateHeader) ThwartedPlans() int { return int(atomic.LoadInt32(&s.thwartedPlans)) }

// ExecutedAgents returns the global count of executed informants.
func (s *StateHeader) ExecutedAgents() int { return int(atomic.LoadInt32(&s.executedAgents)) }

// ElapsedTicks returns the simulation clock in ticks.
func (s *StateHeader) ElapsedTicks() int { return int(atomic.LoadInt32(&s.elapsed)) }

// Callers hold GAME_STATS for the increments below.

func (s *StateHeader) IncSuccessfulPlans() { atomic.AddInt32(&s.successfulPlans, 1) }
func (s *StateHeader) IncThwartedPlans()   { atomic.AddInt32(&s.thwartedPlans, 1) }
func (s *StateHeader) IncExecutedAgents()  { atomic.AddInt32(&s.executedAgents, 1) }

// AdvanceClock adds one tick to the simulation clock. Only the owner calls it.
func (s *StateHeader) AdvanceClock() int { return int(atomic.AddInt32(&s.elapsed, 1)) }

// RequestShutdown raises the process-wide termination flag.
func (s *StateHeader) RequestShutdown() { atomic.StoreUint32(&s.shutdown, 1) }

// ShutdownRequested reports whether the termination flag is set.
func (s *StateHeader) ShutdownRequested() bool { return atomic.LoadUint32(&s.shutdown) != 0 }

// ArrestCountdown returns the remaining prison ticks of gang g (0 = free).
func (s *StateHeader) ArrestCountdown(g sim.GangID) int {
	return int(atomic.LoadInt32(&s.arrested[g]))
}

// SetArrestCountdown sets gang g's prison countdown.
func (s *StateHeader) SetArrestCountdown(g sim.GangID, ticks int) {
	atomic.StoreInt32(&s.arrested[g], int32(ticks))
}

// DecrementArrest lowers gang g's countdown by one, never below zero, and
// returns the new value.
func (s *StateHeader) DecrementArrest(g sim.GangID) int {
	for {
		v := atomic.LoadInt32(&s.arrested[g])
		if v <= 0 {
			return 0
		}
		if atomic.CompareAndSwapInt32(&s.arrested[g], v, v-1) {
			return int(v - 1)
		}
	}
}

// Target decodes row t of the shared target table. Callers that need a
// consistent heat value hold GAME_STATS.
func (s *StateHeader) Target(t sim.TargetType) sim.Target {
	rec := &s.Targets[t]
	n := 0
	for n < TargetNameLen && rec.Name[n] != 0 {
		n++
	}
	return sim.Target{
		Type:    t,
		Name:    string(rec.Name[:n]),
		Heat:    rec.Heat,
		Weights: rec.Weights,
	}
}

// AllTargets decodes the whole table.
func (s *StateHeader) AllTargets() []sim.Target {
	out := make([]sim.Target, sim.NumTargets)
	for i := range out {
		out[i] = s.Target(sim.TargetType(i))
	}
	return out
}

// AddTargetHeat raises the global heat of target t by delta. Callers hold GAME_STATS.
func (s *StateHeader) AddTargetHeat(t sim.TargetType, delta float64) {
	s.Targets[t].Heat += delta
}

func (s *StateHeader) storeTarget(t sim.Target) {
	rec := &s.Targets[t.Type]
	rec.Name = [TargetNameLen]byte{}
	copy(rec.Name[:TargetNameLen-1], t.Name)
	rec.Heat = t.Heat
	rec.Weights = t.Weights
}

// Plan outcomes stored in GangRecord.PlanSuccess and LastOutcome.
const (
	PlanThwarted  int32 = -1
	PlanPending   int32 = 0
	PlanSucceeded int32 = 1
)

// NoTarget marks a gang that has not selected a target yet.
const NoTarget int32 = -1

// GangRecord is one gang's slot. Every field except the counters is guarded by Mu.
// SuccessfulPlans and ThwartedPlans are guarded by GANG_STATS.
type GangRecord struct {
	Mu           psync.Mutex
	PrepDone     psync.Cond // members_ready reached the participant count
	PlanExecuted psync.Cond // a cycle resolved, or a new one opened

	MembersReady   int32
	PlanSuccess    int32 // tri-state, see PlanThwarted/PlanPending/PlanSucceeded
	PlanInProgress int32
	Cycle          int32 // number of the most recently opened cycle
	ResolvedCycle  int32 // number of the most recently resolved cycle
	LastOutcome    int32 // outcome of ResolvedCycle
	Participants   int32 // alive members frozen at cycle open
	Acks           int32 // participants that have observed the resolution of Cycle

	ID              int32
	Target          int32
	PrepTime        int32
	PrepLevel       int32
	NumAlive        int32
	MaxMemberCount  int32
	Capacity        int32
	NumAgents       int32
	SuccessfulPlans int32
	ThwartedPlans   int32
	NextInfoSpread  int32 // tick of the next information diffusion round

	Notoriety            float64
	MisinformationChance float64
	Heat                 [sim.NumTargets]float64
}

// TargetType returns the selected target; ok is false before the first selection.
func (g *GangRecord) TargetType() (t sim.TargetType, ok bool) {
	if g.Target == NoTarget {
		return 0, false
	}
	return sim.TargetType(g.Target), true
}

// CloseOpenCycle resolves an open, unresolved cycle as thwarted and wakes every
// waiter. Called with Mu held. Reports whether a cycle was closed.
func (g *GangRecord) CloseOpenCycle() bool {
	if g.PlanInProgress == 0 || g.ResolvedCycle >= g.Cycle {
		return false
	}
	g.PlanSuccess = PlanThwarted
	g.LastOutcome = PlanThwarted
	g.ResolvedCycle = g.Cycle
	g.PlanInProgress = 0
	g.PlanExecuted.Broadcast()
	g.PrepDone.Broadcast()
	return true
}

// ResetBarrier clears the barrier fields at the end of a prison term. Called
// with Mu held.
func (g *GangRecord) ResetBarrier() {
	g.PlanInProgress = 0
	g.PlanSuccess = PlanPending
	g.MembersReady = 0
	g.PlanExecuted.Broadcast()
}

// Info packet kinds.
const (
	InfoFalse   int32 = 0
	InfoPartial int32 = 1
	InfoCorrect int32 = 2
)

// PacketCapacity is the depth of each member's information ring.
const PacketCapacity = 5

// InfoPacket is one piece of information a member received during diffusion.
type InfoPacket struct {
	Kind       int32
	SourceRank int32
	Accuracy   float64
	Timestamp  int32
	_          int32
}

// MemberRecord is one member slot. Guarded by the owning gang's Mu.
type MemberRecord struct {
	Rank             int32
	alive            int32
	agent            int32 // sim.MemberRole wire form
	numAskers        int32
	PrepContribution int32
	numPackets       int32
	packetHead       int32
	_                int32

	Experience     float64
	Knowledge      float64
	Suspicion      float64
	Faithfulness   float64
	Discretion     float64
	Shrewdness     float64
	Misinformation float64
	Attributes     [sim.NumAttributes]float64

	askers  [sim.MaxAskersLimit]int32
	packets [PacketCapacity]InfoPacket
}

// Alive reports whether the member is alive.
func (m *MemberRecord) Alive() bool { return m.alive != 0 }

// SetAlive marks the member alive or dead.
func (m *MemberRecord) SetAlive(alive bool) {
	if alive {
		m.alive = 1
	} else {
		m.alive = 0
	}
}

// Role decodes the member's role.
func (m *MemberRecord) Role() sim.MemberRole { return sim.RoleFromWire(m.agent) }

// SetRole stores the member's role.
func (m *MemberRecord) SetRole(r sim.MemberRole) { m.agent = r.Wire() }

// Askers returns the ids of members that interrogated this one.
func (m *MemberRecord) Askers() []sim.MemberID {
	out := make([]sim.MemberID, m.numAskers)
	for i := range out {
		out[i] = sim.MemberID(m.askers[i])
	}
	return out
}

// RecordAsker adds id to the askers list. It is idempotent and drops new askers
// once limit (at most MaxAskersLimit) entries are held. Reports whether id was added.
func (m *MemberRecord) RecordAsker(id sim.MemberID, limit int) bool {
	limit = min(limit, sim.MaxAskersLimit)
	for i := int32(0); i < m.numAskers; i++ {
		if m.askers[i] == int32(id) {
			return false
		}
	}
	if int(m.numAskers) >= limit {
		return false
	}
	m.askers[m.numAskers] = int32(id)
	m.numAskers++
	return true
}

// ClearAskers empties the askers list.
func (m *MemberRecord) ClearAskers() { m.numAskers = 0 }

// PushPacket appends p to the ring, overwriting the oldest packet when full.
func (m *MemberRecord) PushPacket(p InfoPacket) {
	idx := (m.packetHead + m.numPackets) % PacketCapacity
	if m.numPackets == PacketCapacity {
		idx = m.packetHead
		m.packetHead = (m.packetHead + 1) % PacketCapacity
	} else {
		m.numPackets++
	}
	m.packets[idx] = p
}

// Packets returns the held packets, oldest first.
func (m *MemberRecord) Packets() []InfoPacket {
	out := make([]InfoPacket, m.numPackets)
	for i := range out {
		out[i] = m.packets[(int(m.packetHead)+i)%PacketCapacity]
	}
	return out
}

// Reset zeroes the record.
func (m *MemberRecord) Reset() { *m = MemberRecord{} }

var (
	headerSize = int(unsafe.Sizeof(StateHeader{}))
	gangSize   = int(unsafe.Sizeof(GangRecord{}))
	memberSize = int(unsafe.Sizeof(MemberRecord{}))
)
