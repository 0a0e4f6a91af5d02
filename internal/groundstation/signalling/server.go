package signalling

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/inspirers/groundstation/internal/groundstation/cache"
	"github.com/inspirers/groundstation/internal/groundstation/planner"
	"github.com/inspirers/groundstation/internal/groundstation/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns every PeerSession for the lifetime of the process: the
// connection map, the order connections arrived in (for index-based slot
// addressing), and the shared resources a session needs to do its work.
type Server struct {
	mu        sync.RWMutex
	sessions  map[string]*PeerSession
	order     []string          // connection ids in arrival order, index == target_drone_id-1
	byDroneID map[string]string // stable drone id -> connection id
	slotOwner map[int]string    // planner slot index -> connection id currently claiming it

	targets []planner.FlyToTarget

	api         *webrtc.API
	cacheA      *cache.Adapter
	positionTTL int // seconds
	log         *logrus.Entry
	ctx         context.Context

	nextConnID int

	dispatchCh chan dispatchTask
}

// Config carries the shared collaborators a new Server needs. The listen
// address itself is the Supervisor's concern, since the HTTP server is
// constructed one level up around Mux().
type Config struct {
	Targets     []planner.FlyToTarget
	Cache       *cache.Adapter
	PositionTTL int
}

// dispatchQueueSize bounds the buffered channel of inbound commands waiting
// to be resolved and written by the server loop goroutine. The Bridge never
// blocks on a connection map lookup or WebSocket write, nor on this channel:
// a command that arrives while it is full is logged and dropped.
const dispatchQueueSize = 64

// dispatchTask is one command waiting to be resolved against the connection
// map and written to its target session, queued by EnqueueCommand and
// drained exclusively by Run.
type dispatchTask struct {
	cmd protocol.CommandMessage
}

// NewServer constructs a Server with a fresh pion API that has pion's
// default codecs registered, so a drone's video track can be negotiated;
// this core only negotiates the handshake, it does not touch media itself.
func NewServer(cfg Config, log *logrus.Entry) *Server {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		log.WithError(err).Warn("failed to register default WebRTC codecs")
	}
	return &Server{
		sessions:    make(map[string]*PeerSession),
		byDroneID:   make(map[string]string),
		slotOwner:   make(map[int]string),
		targets:     cfg.Targets,
		api:         webrtc.NewAPI(webrtc.WithMediaEngine(media)),
		cacheA:      cfg.Cache,
		positionTTL: cfg.PositionTTL,
		log:         log.WithField("component", "server"),
		ctx:         context.Background(),
		dispatchCh:  make(chan dispatchTask, dispatchQueueSize),
	}
}

// Run is the server's own loop goroutine: it owns the connection map and is
// the only goroutine ever permitted to resolve a target and write to a
// session on the command path. The Command Bridge goroutine only ever
// enqueues onto dispatchCh via EnqueueCommand; it never touches s.sessions,
// s.byDroneID, or s.order directly. Run returns once ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.dispatchCh:
			s.dispatch(task.cmd)
		}
	}
}

// SetContext replaces the context used for cache writes issued from
// request handling, scoping them to the Supervisor's lifecycle.
func (s *Server) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// Mux builds the HTTP handler: the WebSocket upgrade endpoint plus an
// optional CORS-wrapped health check, the one seam where an external HTTP
// façade touches this otherwise socket-only core.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})
	return c.Handler(mux)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	session := s.accept(conn)
	defer s.remove(session.ID)

	if err := session.SendAssignedCoordinate(); err != nil {
		session.log.WithError(err).Warn("failed to send initial assignment")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleFrame(session, data)
	}
	session.Close("transport closed")
}

// accept registers a new session, assigning it the first slot not currently
// claimed by another open session. A drone connecting once every slot is
// already claimed is over capacity: it shares the last slot's target
// without claiming it, per §9's "assigns the last slot to all extras".
func (s *Server) accept(conn *websocket.Conn) *PeerSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.allocateID()
	session := NewPeerSession(id, conn, s.api, s.log)

	if len(s.targets) > 0 {
		slot, claimed := s.claimSlot(id)
		if claimed {
			session.AssignTarget(s.targets[slot])
		} else {
			session.AssignTarget(s.targets[len(s.targets)-1])
		}
		s.log.WithField("connection_id", id).WithField("slot", slot).
			WithField("claimed", claimed).Info("drone connected")
	} else {
		s.log.WithField("connection_id", id).Info("drone connected")
	}

	s.sessions[id] = session
	s.order = append(s.order, id)
	return session
}

// claimSlot finds the first target slot not currently held by an open
// session and marks it claimed by connID. If every slot is already claimed,
// it reports the last slot as an unclaimed fallback: extras beyond
// len(targets) share that target but never occupy it exclusively, so a
// later departure of its rightful owner still frees it for reuse.
func (s *Server) claimSlot(connID string) (slot int, claimed bool) {
	for i := range s.targets {
		if _, held := s.slotOwner[i]; !held {
			s.slotOwner[i] = connID
			return i, true
		}
	}
	return len(s.targets) - 1, false
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok && sess.DroneID != "" {
		delete(s.byDroneID, sess.DroneID)
	}
	for slot, owner := range s.slotOwner {
		if owner == id {
			delete(s.slotOwner, slot)
			break
		}
	}
	delete(s.sessions, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Server) allocateID() string {
	s.nextConnID++
	return formatConnID(s.nextConnID)
}

func formatConnID(n int) string {
	const digits = "0123456789"
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%10]
		n /= 10
	}
	return "conn-" + string(buf[i:])
}

// handleFrame demultiplexes one inbound frame by msg_type per §6.2.
// Malformed JSON and unknown msg_type are logged and dropped; they never
// terminate the session.
func (s *Server) handleFrame(session *PeerSession, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		session.log.WithError(err).Warn("dropping malformed frame")
		return
	}

	switch env.MsgType {
	case protocol.MsgCoordinateRequest:
		if err := session.SendAssignedCoordinate(); err != nil {
			session.log.WithError(err).Warn("failed to resend coordinate assignment")
		}

	case protocol.MsgPosition:
		var pos protocol.PositionMessage
		if err := env.Decode(&pos); err != nil {
			session.log.WithError(err).Warn("dropping malformed position frame")
			return
		}
		s.ingestPosition(session, pos)

	case protocol.MsgDebug:
		var dbg protocol.DebugMessage
		if err := env.Decode(&dbg); err == nil {
			session.log.WithField("msg", dbg.Msg).Info("drone debug message")
		}

	case protocol.MsgOffer:
		var offer protocol.OfferMessage
		if err := env.Decode(&offer); err != nil {
			session.log.WithError(err).Warn("dropping malformed offer frame")
			return
		}
		if err := session.HandleOffer(offer.SDP); err != nil {
			session.log.WithError(err).Warn("failed to handle offer")
		}

	case protocol.MsgCandidate:
		var cand protocol.CandidateMessage
		if err := env.Decode(&cand); err != nil {
			session.log.WithError(err).Warn("dropping malformed candidate frame")
			return
		}
		if err := session.HandleCandidate(cand.Candidate); err != nil {
			session.log.WithError(err).Warn("failed to apply candidate")
		}

	case protocol.MsgIdentify:
		var id protocol.IdentifyMessage
		if err := env.Decode(&id); err != nil {
			session.log.WithError(err).Warn("dropping malformed identify frame")
			return
		}
		s.bindDroneID(session, id.DroneID)

	case "answer":
		session.log.Warn("unexpected answer frame from client")

	default:
		session.log.WithField("msg_type", env.MsgType).Warn("unknown msg_type")
	}
}

func (s *Server) bindDroneID(session *PeerSession, droneID string) {
	if droneID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Identify(droneID)
	s.byDroneID[droneID] = session.ID
}

func (s *Server) ingestPosition(session *PeerSession, pos protocol.PositionMessage) {
	if s.cacheA == nil {
		return
	}
	rec := cache.PositionRecord{
		Latitude:     pos.Latitude,
		Longitude:    pos.Longitude,
		Altitude:     pos.Altitude,
		Timestamp:    pos.Timestamp,
		ConnectionID: session.ID,
	}
	ttl := positionTTLDuration(s.positionTTL)
	if err := s.cacheA.PutPosition(s.ctx, ttl, rec); err != nil {
		session.log.WithError(err).Warn("failed to store position record")
	}
}

// EnqueueCommand implements the bridge.Dispatcher interface. It never
// touches the connection map or writes to a session itself: it only submits
// the decoded command onto dispatchCh, which the Run loop goroutine drains.
// This is what keeps the Bridge goroutine (running on the Redis subscribe
// loop) from ever reading or writing server-domain state directly. A full
// queue logs and drops the command rather than blocking the bridge.
func (s *Server) EnqueueCommand(cmd protocol.CommandMessage) {
	select {
	case s.dispatchCh <- dispatchTask{cmd: cmd}:
	default:
		s.log.WithField("target_drone_id", cmd.TargetDroneID).
			Warn("dispatch queue full, dropping command")
	}
}

// dispatch resolves a CommandMessage's target to a session, preferring a
// stable drone-id match and falling back to index-based addressing, then
// writes the command frame. Only ever called from the Run loop goroutine.
func (s *Server) dispatch(cmd protocol.CommandMessage) {
	s.mu.RLock()
	session := s.resolveTarget(cmd.TargetDroneID)
	s.mu.RUnlock()

	if session == nil {
		s.log.WithField("target_drone_id", cmd.TargetDroneID).
			Warn("command addressed to unknown drone")
		return
	}
	if err := session.Dispatch(cmd.BuildCommandFrame()); err != nil {
		session.log.WithError(err).Warn("failed to dispatch command")
		session.Close("command send failed")
	}
}

// resolveTarget implements §9's addressing policy: a drone that has
// Identify'd itself with a stable id matching the numeric target (compared
// as its decimal string form) is matched directly, surviving reconnects.
// Otherwise target_drone_id falls back to an index into arrival order,
// preserving the original's fragile-but-simple behaviour for compatibility.
func (s *Server) resolveTarget(targetDroneID int) *PeerSession {
	if connID, ok := s.byDroneID[strconv.Itoa(targetDroneID)]; ok {
		return s.sessions[connID]
	}
	idx := targetDroneID - 1
	if idx < 0 || idx >= len(s.order) {
		return nil
	}
	return s.sessions[s.order[idx]]
}

func positionTTLDuration(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// Shutdown closes every session. Safe to call once at process exit.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.Close("server cleanup")
	}
}
