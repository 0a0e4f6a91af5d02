// Package signalling implements the per-drone WebSocket signalling
// connection: an explicit WebRTC handshake state machine wrapped around a
// pion PeerConnection, grounded on the pack's drone-control-system stream
// server (pkg/webrtc/stream_server.go) generalised from a fixed
// video/audio stream to the broader §4.D protocol.
package signalling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	gs "github.com/inspirers/groundstation/internal/groundstation"
	"github.com/inspirers/groundstation/internal/groundstation/planner"
	"github.com/inspirers/groundstation/internal/groundstation/protocol"
)

// PeerState is one state in the WebRTC handshake state machine. It
// advances monotonically; the only back-edge is to Closed.
type PeerState int

const (
	Idle PeerState = iota
	OfferReceived
	Answered
	Connected
	Closed
)

func (s PeerState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case OfferReceived:
		return "OfferReceived"
	case Answered:
		return "Answered"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// writer serialises concurrent writes to one WebSocket connection, the
// same threadSafeWriter role the pack's stream server gives its
// per-connection mutex.
type writer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *writer) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// PeerSession is the per-connection record owned exclusively by the Server:
// a connection id, the assigned fly-to target (if any), the WebRTC
// handshake state, and the underlying transport and peer connection
// handles.
type PeerSession struct {
	ID       string
	DroneID  string // stable identity from an Identify frame, empty until set
	Target   *planner.FlyToTarget
	State    PeerState
	api      *webrtc.API
	pc       *webrtc.PeerConnection
	w        *writer
	log      *logrus.Entry
	pending  []*webrtc.ICECandidateInit // buffered before a remote description exists
}

// NewPeerSession wraps an accepted WebSocket connection. The WebRTC
// PeerConnection itself is created lazily, on the first offer, mirroring
// the stream server's per-connection construction.
func NewPeerSession(id string, conn *websocket.Conn, api *webrtc.API, log *logrus.Entry) *PeerSession {
	return &PeerSession{
		ID:    id,
		State: Idle,
		api:   api,
		w:     &writer{conn: conn},
		log:   log.WithField("connection_id", id),
	}
}

// AssignTarget records the fly-to target this session was given at
// connect time, or by a later reassignment.
func (s *PeerSession) AssignTarget(t planner.FlyToTarget) {
	s.Target = &t
}

// SendAssignedCoordinate transmits the assigned target as a
// Coordinate_assignment frame. It is a no-op if no target has been
// assigned.
func (s *PeerSession) SendAssignedCoordinate() error {
	if s.Target == nil {
		return nil
	}
	msg := protocol.FormatAssignment(*s.Target)
	if err := s.w.writeJSON(msg); err != nil {
		return &gs.TransportError{Op: "send coordinate assignment", Err: err}
	}
	return nil
}

// HandleOffer applies a remote SDP offer, creates the local peer
// connection if this is the first offer, and transmits the local answer.
// Receiving a second offer after one has already been processed is a
// StateError: the table in §4.D only allows Idle -> OfferReceived.
func (s *PeerSession) HandleOffer(sdp string) error {
	if s.State != Idle {
		return &gs.StateError{Reason: "duplicate offer in state " + s.State.String()}
	}

	pc, err := s.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return &gs.TransportError{Op: "create peer connection", Err: err}
	}
	s.pc = pc
	s.wireCallbacks()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return &gs.ProtocolError{Reason: "set remote description", Err: err}
	}
	s.State = OfferReceived
	s.flushPendingCandidates()

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return &gs.TransportError{Op: "create answer", Err: err}
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return &gs.TransportError{Op: "set local description", Err: err}
	}

	if err := s.w.writeJSON(protocol.AnswerMessage{
		MsgType: protocol.MsgAnswer,
		SDP:     answer.SDP,
		Type:    answer.Type.String(),
	}); err != nil {
		return &gs.TransportError{Op: "send answer", Err: err}
	}
	s.State = Answered
	return nil
}

// HandleCandidate applies an ICE candidate. A nil candidate is
// end-of-candidates and is treated as a no-op: the underlying pion stack
// handles end-of-candidates internally. A candidate arriving before any
// remote description is buffered rather than rejected, since offer and
// candidate frames can race on the wire.
func (s *PeerSession) HandleCandidate(c *protocol.ICECandidateInit) error {
	if c == nil {
		return nil
	}
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &c.SDPMid,
		SDPMLineIndex: &c.SDPMLineIndex,
	}
	if s.pc == nil || s.State == Idle {
		s.pending = append(s.pending, &init)
		return nil
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return &gs.ProtocolError{Reason: "add ICE candidate", Err: err}
	}
	return nil
}

func (s *PeerSession) flushPendingCandidates() {
	for _, c := range s.pending {
		if err := s.pc.AddICECandidate(*c); err != nil {
			s.log.WithError(err).Warn("failed to apply buffered ICE candidate")
		}
	}
	s.pending = nil
}

// Identify binds a stable drone identity to this session.
func (s *PeerSession) Identify(droneID string) {
	s.DroneID = droneID
	s.log = s.log.WithField("drone_id", droneID)
}

// Dispatch sends an arbitrary outbound frame, used for fanned-out commands
// from the bus.
func (s *PeerSession) Dispatch(frame interface{}) error {
	if err := s.w.writeJSON(frame); err != nil {
		return &gs.TransportError{Op: "dispatch command", Err: err}
	}
	return nil
}

// Close tears down the WebRTC peer connection, if any, sends a normal
// closure (code 1000) close frame carrying reason, closes the WebSocket,
// and moves the session to its terminal state. Safe to call more than once.
func (s *PeerSession) Close(reason string) {
	if s.State == Closed {
		return
	}
	s.log.WithField("reason", reason).Info("closing peer session")
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.log.WithError(err).Warn("error closing peer connection")
		}
	}
	s.w.mu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = s.w.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
	_ = s.w.conn.Close()
	s.w.mu.Unlock()
	s.State = Closed
}

func (s *PeerSession) wireCallbacks() {
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.WithField("state", connectionStatePhrase(state)).Info("WebRTC connection state changed")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.State = Connected
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.Close("peer reported " + state.String())
		}
	})
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		_ = c // outbound candidate trickling is not part of this protocol: the drone client does not accept server-initiated candidates.
	})
}

// connectionStatePhrase maps a WebRTC connection state to the
// human-readable phrase used in log lines, mirroring
// DroneStreamManager.py's handle_on_connection_state_change mapping.
func connectionStatePhrase(state webrtc.PeerConnectionState) string {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return "connection is being initialized"
	case webrtc.PeerConnectionStateConnecting:
		return "connection is being established"
	case webrtc.PeerConnectionStateConnected:
		return "connection is now established"
	case webrtc.PeerConnectionStateDisconnected:
		return "connection has been disconnected"
	case webrtc.PeerConnectionStateFailed:
		return "connection has failed"
	case webrtc.PeerConnectionStateClosed:
		return "connection has been closed"
	default:
		return state.String()
	}
}
