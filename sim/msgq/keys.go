package msgq

import "github.com/gang-sim/gang-sim/sim"

// Key is a routing key: the message type field that multiplexes the single
// channel into point-to-point mailboxes. Keys are always positive.
//
// The key space is split into blocks of maxAgents+1 keys per gang. Within gang
// g's block, keys 1..maxAgents address its agents and the last key is the gang's
// broadcast mailbox. Officers' keys start right after the last gang block.
type Key int64

// AgentKey addresses agent a of gang g.
func AgentKey(maxAgents int, g sim.GangID, a sim.AgentID) Key {
	return Key((maxAgents+1)*int(g) + int(a) + 1)
}

// GangBroadcastKey addresses gang g as a whole (handshake requests).
// It is the last key of the gang's block, one past its highest agent key.
func GangBroadcastKey(maxAgents int, g sim.GangID) Key {
	return Key((maxAgents+1)*int(g) + maxAgents + 1)
}

// PoliceKey addresses officer p.
func PoliceKey(maxAgents, numGangs int, p sim.PoliceID) Key {
	return Key((maxAgents+1)*numGangs + int(p) + 1)
}

// Router computes keys for one run's capacity constants.
type Router struct {
	MaxAgents int
	NumGangs  int
}

// NewRouter returns the router for cfg. cfg.NumGangs must be resolved.
func NewRouter(cfg sim.Config) Router {
	return Router{MaxAgents: cfg.MaxAgentsPerGang, NumGangs: cfg.NumGangs}
}

func (r Router) Agent(g sim.GangID, a sim.AgentID) Key { return AgentKey(r.MaxAgents, g, a) }
func (r Router) Gang(g sim.GangID) Key                 { return GangBroadcastKey(r.MaxAgents, g) }
func (r Router) Police(p sim.PoliceID) Key             { return PoliceKey(r.MaxAgents, r.NumGangs, p) }
