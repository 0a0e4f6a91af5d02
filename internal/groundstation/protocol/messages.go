// Package protocol defines the wire messages exchanged over the drone
// WebSocket channel and the command bus, and the string-truncation rule the
// original core applies to outbound coordinate assignments.
package protocol

import (
	"encoding/json"
	"fmt"

	gs "github.com/inspirers/groundstation/internal/groundstation"
	"github.com/inspirers/groundstation/internal/groundstation/planner"
)

// Inbound msg_type values, client to server.
const (
	MsgCoordinateRequest = "Coordinate_request"
	MsgPosition          = "Position"
	MsgDebug             = "Debug"
	MsgOffer             = "offer"
	MsgCandidate         = "candidate"
	MsgIdentify          = "Identify"
)

// Outbound msg_type values, server to client.
const (
	MsgCoordinateAssignment = "Coordinate_assignment"
	MsgAnswer               = "answer"
)

// Envelope is the minimal shape every inbound frame must satisfy: enough to
// read msg_type and defer parsing the rest.
type Envelope struct {
	MsgType string          `json:"msg_type"`
	raw     json.RawMessage `json:"-"`
}

// ParseEnvelope reads msg_type out of a raw frame, keeping the original
// bytes around so the caller can re-decode into the concrete type once it
// knows which one applies. A missing msg_type is a ProtocolError.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &gs.ProtocolError{Reason: "invalid JSON frame", Err: err}
	}
	if env.MsgType == "" {
		return Envelope{}, &gs.ProtocolError{Reason: "missing msg_type"}
	}
	env.raw = data
	return env, nil
}

// Decode re-parses the envelope's original bytes into a concrete message
// type, v, which must be a pointer.
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		return &gs.ProtocolError{Reason: "malformed " + e.MsgType + " frame", Err: err}
	}
	return nil
}

// PositionMessage is the inbound telemetry update.
type PositionMessage struct {
	MsgType   string   `json:"msg_type"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  float64  `json:"altitude"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// DebugMessage is a free-form log line sent by the drone client.
type DebugMessage struct {
	MsgType string `json:"msg_type"`
	Msg     string `json:"msg"`
}

// OfferMessage carries a WebRTC SDP offer.
type OfferMessage struct {
	MsgType string `json:"msg_type"`
	SDP     string `json:"sdp"`
	Type    string `json:"type,omitempty"`
}

// ICECandidateInit mirrors the wire shape of a browser RTCIceCandidateInit.
type ICECandidateInit struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// CandidateMessage carries an ICE candidate, or a nil Candidate to signal
// end-of-candidates.
type CandidateMessage struct {
	MsgType   string            `json:"msg_type"`
	Candidate *ICECandidateInit `json:"candidate"`
}

// IdentifyMessage binds a stable drone identity to the session.
type IdentifyMessage struct {
	MsgType string `json:"msg_type"`
	DroneID string `json:"drone_id"`
}

// CoordinateAssignmentMessage is the outbound fly-to target. Lat, Lng, Alt,
// and Angle are pre-truncated decimal strings, not numbers: the original
// core serialises them this way and clients parse them as such.
type CoordinateAssignmentMessage struct {
	MsgType string `json:"msg_type"`
	Lat     string `json:"lat"`
	Lng     string `json:"lng"`
	Alt     string `json:"alt"`
	Angle   string `json:"angle"`
}

// AnswerMessage carries the local WebRTC SDP answer.
type AnswerMessage struct {
	MsgType string `json:"msg_type"`
	SDP     string `json:"sdp"`
	Type    string `json:"type"`
}

// CommandMessage is the payload published on the command bus: an address,
// a command name, an arbitrary payload to merge into the outbound frame,
// and a publish timestamp.
type CommandMessage struct {
	TargetDroneID int                    `json:"target_drone_id"`
	Command       string                 `json:"command"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     float64                `json:"timestamp"`
}

// ParseCommandMessage decodes a bus payload into a CommandMessage. A
// target_drone_id below 1 or an empty command is a ProtocolError.
func ParseCommandMessage(data []byte) (CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		return CommandMessage{}, &gs.ProtocolError{Reason: "malformed command message", Err: err}
	}
	if cmd.TargetDroneID < 1 {
		return CommandMessage{}, &gs.ProtocolError{Reason: "command message target_drone_id must be >= 1"}
	}
	if cmd.Command == "" {
		return CommandMessage{}, &gs.ProtocolError{Reason: "command message is missing command"}
	}
	return cmd, nil
}

// BuildCommandFrame flattens a CommandMessage's command name and payload
// into the {msg_type: command, ...payload} frame the drone expects.
func (c CommandMessage) BuildCommandFrame() map[string]interface{} {
	frame := make(map[string]interface{}, len(c.Payload)+1)
	for k, v := range c.Payload {
		frame[k] = v
	}
	frame["msg_type"] = c.Command
	return frame
}

// FormatAssignment renders a planner target as the outbound truncated-string
// assignment frame.
func FormatAssignment(target planner.FlyToTarget) CoordinateAssignmentMessage {
	return CoordinateAssignmentMessage{
		MsgType: MsgCoordinateAssignment,
		Lat:     truncateDecimal(target.Coordinate.Lat, 9),
		Lng:     truncateDecimal(target.Coordinate.Lng, 9),
		Alt:     truncateDecimal(target.Coordinate.Alt, 2),
		Angle:   fmt.Sprintf("%d", int64(target.AngleDeg)),
	}
}

// truncateDecimal formats f with enough precision to fill maxLen characters
// then cuts to exactly that many runes, matching the original core's
// str(x)[:n] truncation (not rounding).
func truncateDecimal(f float64, maxLen int) string {
	s := fmt.Sprintf("%.9f", f)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
