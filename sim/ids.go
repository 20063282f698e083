package sim

import "fmt"

// GangID indexes a gang slot in the shared region.
// Uses distinct type (not alias) so gang, member and agent indices cannot be mixed.
type GangID int32

// MemberID indexes a member slot within its gang's member array.
type MemberID int32

// AgentID identifies an informant to the officer monitoring its gang.
// Agent ids are assigned per gang, starting at 0.
type AgentID int32

// PoliceID identifies an officer. Officer i monitors gang i.
type PoliceID int32

// NoAgent is the value stored in a member record that is not an informant.
const NoAgent AgentID = -1

type roleKind uint8

const (
	roleCivilian roleKind = iota
	roleAgent
)

// MemberRole distinguishes ordinary members from police informants.
// The zero value is a civilian.
type MemberRole struct {
	kind  roleKind
	agent AgentID
}

// Civilian returns the role of a member that is not an informant.
func Civilian() MemberRole {
	return MemberRole{kind: roleCivilian, agent: NoAgent}
}

// Informant returns the role of a member planted by police under the given agent id.
func Informant(id AgentID) MemberRole {
	return MemberRole{kind: roleAgent, agent: id}
}

// RoleFromWire decodes the int32 stored in the shared member record.
// Negative values decode to Civilian.
func RoleFromWire(v int32) MemberRole {
	if v < 0 {
		return Civilian()
	}
	return Informant(AgentID(v))
}

// Wire encodes the role for the shared member record (-1 for civilians).
func (r MemberRole) Wire() int32 {
	if r.kind != roleAgent {
		return int32(NoAgent)
	}
	return int32(r.agent)
}

// IsAgent reports whether the member is a police informant.
func (r MemberRole) IsAgent() bool {
	return r.kind == roleAgent
}

// AgentID returns the informant id; ok is false for civilians.
func (r MemberRole) AgentID() (id AgentID, ok bool) {
	if r.kind != roleAgent {
		return NoAgent, false
	}
	return r.agent, true
}

func (r MemberRole) String() string {
	if r.kind == roleAgent {
		return fmt.Sprintf("agent(%d)", r.agent)
	}
	return "civilian"
}
