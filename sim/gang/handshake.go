package gang

import (
	"context"
	"errors"
	"math/rand"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/msgq"
)

// runHandshakeResponder answers plant requests arriving on the gang broadcast key.
func (g *Gang) runHandshakeResponder(ctx context.Context, rng *rand.Rand) error {
	key := g.router.Gang(g.id)
	for {
		msg, err := g.ch.Receive(ctx, key)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, msgq.ErrClosed) {
				return nil
			}
			g.log.Warnf("handshake receive: %v", err)
			if !sleep(ctx, g.cfg.Tick()) {
				return nil
			}
			continue
		}
		if msg.Mode != msgq.ModeHandshake {
			g.log.Debugf("ignoring %s on the broadcast key", msg.Mode)
			continue
		}

		agent := g.Recruit(rng)
		reply := msgq.Message{
			Key:      g.router.Police(msg.PoliceID),
			Mode:     msgq.ModeHandshake,
			GangID:   g.id,
			AgentID:  agent,
			PoliceID: msg.PoliceID,
		}
		if err := msgq.SendRetry(ctx, g.ch, reply, sendAttempts, g.cfg.Tick()); err != nil {
			g.log.Debugf("handshake reply to officer %d dropped: %v", msg.PoliceID, err)
		}
	}
}

// Recruit tries to turn one random alive civilian into an informant. The leader
// is never approached. The chosen member accepts with probability
// 1 − faithfulness and receives the smallest agent id not held by a living
// informant. Returns sim.NoAgent on refusal or when the gang is at its
// informant limit.
func (g *Gang) Recruit(rng *rand.Rand) sim.AgentID {
	rec := g.h.Gang(g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if int(rec.NumAgents) >= g.cfg.MaxAgentsPerGang {
		return sim.NoAgent
	}
	members := g.h.Members(g.id)
	var candidates []int
	used := g.heldIDs
	for i := range members {
		m := &members[i]
		if !m.Alive() {
			continue
		}
		if id, ok := m.Role().AgentID(); ok {
			used |= 1 << uint(id)
			continue
		}
		if i != 0 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return sim.NoAgent
	}
	chosen := candidates[rng.Intn(len(candidates))]
	m := &members[chosen]
	if rng.Float64() >= 1-m.Faithfulness {
		return sim.NoAgent
	}

	id := sim.NoAgent
	for a := 0; a < g.cfg.MaxAgentsPerGang; a++ {
		if used&(1<<uint(a)) == 0 {
			id = sim.AgentID(a)
			break
		}
	}
	if id == sim.NoAgent {
		return sim.NoAgent
	}
	m.SetRole(sim.Informant(id))
	rec.NumAgents++
	g.log.Infof("member %d turned informant %d", chosen, id)
	return id
}
