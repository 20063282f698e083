package msgq

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gang-sim/gang-sim/sim"
)

// Mode tags a message's meaning.
type Mode uint8

const (
	// ModeHandshake is an officer's plant request to a gang, and the gang's reply
	// carrying the new agent id (or sim.NoAgent on refusal).
	ModeHandshake Mode = iota + 1
	// ModeAgentDeath tells an officer that one of its agents was executed.
	ModeAgentDeath
	// ModePoliceRequest asks an agent for a report.
	ModePoliceRequest
	// ModePoliceReport carries an agent's knowledge to its officer.
	ModePoliceReport
)

func (m Mode) String() string {
	switch m {
	case ModeHandshake:
		return "HANDSHAKE"
	case ModeAgentDeath:
		return "AGENT_DEATH"
	case ModePoliceRequest:
		return "POLICE_REQUEST"
	case ModePoliceReport:
		return "POLICE_REPORT"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// PayloadSize is the fixed size of an encoded message body.
const PayloadSize = 24

// Message is one record on the channel. Key is the routing key and is not part
// of the payload.
type Message struct {
	Key       Key
	Mode      Mode
	GangID    sim.GangID
	AgentID   sim.AgentID
	PoliceID  sim.PoliceID
	Knowledge float64
}

// Payload layout, little endian:
//
//	[0]      mode
//	[1:4]    zero
//	[4:8]    gang id
//	[8:12]   agent id
//	[12:16]  police id
//	[16:24]  knowledge (IEEE 754)

// Encode writes the message body into buf, which must hold PayloadSize bytes.
func (m Message) Encode(buf []byte) {
	_ = buf[PayloadSize-1]
	buf[0] = byte(m.Mode)
	buf[1], buf[2], buf[3] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.GangID))
	binary.LittleEndian.PutUint32(buf[8:], uint32(m.AgentID))
	binary.LittleEndian.PutUint32(buf[12:], uint32(m.PoliceID))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(m.Knowledge))
}

// Decode parses a body produced by Encode. The key is set by the caller.
func Decode(key Key, buf []byte) (Message, error) {
	if len(buf) < PayloadSize {
		return Message{}, fmt.Errorf("message body is %d bytes, want %d", len(buf), PayloadSize)
	}
	m := Message{
		Key:       key,
		Mode:      Mode(buf[0]),
		GangID:    sim.GangID(int32(binary.LittleEndian.Uint32(buf[4:]))),
		AgentID:   sim.AgentID(int32(binary.LittleEndian.Uint32(buf[8:]))),
		PoliceID:  sim.PoliceID(int32(binary.LittleEndian.Uint32(buf[12:]))),
		Knowledge: math.Float64frombits(binary.LittleEndian.Uint64(buf[16:])),
	}
	if m.Mode < ModeHandshake || m.Mode > ModePoliceReport {
		return Message{}, fmt.Errorf("unknown message mode %d", buf[0])
	}
	return m, nil
}
