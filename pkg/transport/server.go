package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitchlink/hitchlink-go/pkg/log"
	"github.com/hitchlink/hitchlink-go/pkg/pairing"
)

// helloTimeout bounds how long an accepted connection may sit silent
// before its hello arrives.
const helloTimeout = 5 * time.Second

// ErrServerClosed indicates the server has been shut down.
var ErrServerClosed = errors.New("transport server closed")

// ServerConfig configures the device-side attribute channel.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":0" or ":7733".
	Addr string

	// SessionKey is the expected session key (see pkg/pairing).
	SessionKey []byte

	// Logger receives transport events. Nil disables.
	Logger log.Logger
}

// Server is the device side of the attribute channel. It accepts remote
// clients, enforces the hello exchange, fans frames out to every session,
// and forwards received commands to the handler.
type Server struct {
	cfg    ServerConfig
	logger log.Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*session
	closed   bool

	onCommand    func(connID string, payload []byte)
	onConnect    func(connID string)
	onDisconnect func(connID string)

	wg sync.WaitGroup
}

// session is one authenticated remote connection.
type session struct {
	id     string
	conn   net.Conn
	framer *Framer
}

// NewServer creates a server. Call Start to begin accepting.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		cfg:      cfg,
		logger:   log.OrNoop(cfg.Logger),
		sessions: make(map[string]*session),
	}
}

// OnCommand sets the handler for received command payloads.
// Must be set before Start.
func (s *Server) OnCommand(fn func(connID string, payload []byte)) {
	s.onCommand = fn
}

// OnConnect sets a callback for completed hello exchanges.
func (s *Server) OnConnect(fn func(connID string)) {
	s.onConnect = fn
}

// OnDisconnect sets a callback for session teardown.
func (s *Server) OnDisconnect(fn func(connID string)) {
	s.onDisconnect = fn
}

// Start begins listening and accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SessionCount returns the number of authenticated sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Publish sends a notify payload to every authenticated session.
// Sessions whose write fails are torn down.
func (s *Server) Publish(payload []byte) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	for _, sess := range targets {
		if err := sess.framer.Write(OpNotify, payload); err != nil {
			s.dropSession(sess)
		}
	}
}

// Close stops accepting and tears down every session.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.listener
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, sess := range sessions {
		sess.conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn runs the hello exchange and then the session read loop.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()

	framer := NewFramer(conn)

	// The hello must arrive promptly and carry the right key.
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	op, payload, err := framer.Read()
	if err != nil || op != OpHello {
		conn.Close()
		return
	}
	if err := pairing.VerifyKey(s.cfg.SessionKey, payload); err != nil {
		// Wrong key: close without a reply.
		s.logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryError,
			Message:   "hello rejected",
			Error:     &log.ErrorEvent{Err: err.Error()},
		})
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	if err := framer.Write(OpHelloAck, nil); err != nil {
		conn.Close()
		return
	}

	sess := &session{
		id:     uuid.New().String(),
		conn:   conn,
		framer: framer,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sess.id,
		Category:     log.CategoryState,
		Message:      "session established",
	})
	if s.onConnect != nil {
		s.onConnect(sess.id)
	}

	s.readLoop(sess)
}

func (s *Server) readLoop(sess *session) {
	defer s.dropSession(sess)

	for {
		op, payload, err := sess.framer.Read()
		if err != nil {
			return
		}

		switch op {
		case OpCommand:
			if s.onCommand != nil {
				s.onCommand(sess.id, payload)
			}
		case OpPing:
			if err := sess.framer.Write(OpPong, nil); err != nil {
				return
			}
		default:
			// Unknown opcodes are ignored; the channel is
			// fire-and-forget.
		}
	}
}

// dropSession closes and unregisters a session. Idempotent.
func (s *Server) dropSession(sess *session) {
	s.mu.Lock()
	_, present := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	if !present {
		return
	}
	sess.conn.Close()

	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sess.id,
		Category:     log.CategoryState,
		Message:      "session closed",
	})
	if s.onDisconnect != nil {
		s.onDisconnect(sess.id)
	}
}
