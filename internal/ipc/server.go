package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes IPC messages
type Handler interface {
	// HandleMessage processes a message and returns a response
	HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, peer *Peer, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, peer *Peer, msg *Message) (*Message, error) {
	return f(ctx, peer, msg)
}

// PeerCredentials identify the process on the other end of the socket.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// Peer is a connected client.
type Peer struct {
	ID          uint64
	Cred        *PeerCredentials
	ConnectedAt time.Time

	conn    net.Conn
	writeMu sync.Mutex

	// events is non-nil while subscribed
	events chan *Message
}

func (p *Peer) send(msg *Message, timeout time.Duration) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(timeout))
	return msg.Write(p.conn)
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int

	// EventQueue bounds per-subscriber buffering; events beyond it are
	// dropped for that subscriber.
	EventQueue int

	Logger *slog.Logger
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:     socketPath,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxConnections: 32,
		EventQueue:     256,
	}
}

// Server is the IPC server that manages client connections
type Server struct {
	cfg     ServerConfig
	handler Handler
	logger  *slog.Logger

	// authorize decides whether a peer may connect
	authorize func(*PeerCredentials) error

	mu       sync.RWMutex
	listener net.Listener
	peers    map[uint64]*Peer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextID        atomic.Uint64
	nextRequestID atomic.Uint32
	dropped       atomic.Uint64
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = 256
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 32
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		authorize: authorizeSameUser,
		peers:     make(map[uint64]*Peer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins listening for connections
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	// A stale socket from a crashed daemon is removed; a live one means
	// another daemon owns it.
	if conn, err := net.DialTimeout("unix", s.cfg.SocketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.cfg.SocketPath)
	}
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every connection and removes the socket.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, p := range s.peers {
		p.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("ipc shutdown timed out")
	}

	os.Remove(s.cfg.SocketPath)
	return nil
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string { return s.cfg.SocketPath }

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Dropped returns the number of events not delivered to slow subscribers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Broadcast queues ev for every subscriber without blocking.
func (s *Server) Broadcast(ev StateEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msg *Message
	for _, p := range s.peers {
		if p.events == nil {
			continue
		}
		if msg == nil {
			payload, err := Encode(ev)
			if err != nil {
				return
			}
			msg = NewMessage(MsgEvent, 0, payload)
		}
		select {
		case p.events <- msg:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("ipc accept failed", "error", err)
			continue
		}

		cred, err := peerCredentials(conn)
		if err == nil {
			err = s.authorize(cred)
		}
		if err != nil {
			s.logger.Warn("ipc peer rejected", "error", err)
			NewErrorMessage(0, ErrPermissionDenied, err.Error()).Write(conn)
			conn.Close()
			continue
		}

		s.mu.Lock()
		if len(s.peers) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			NewErrorMessage(0, ErrUnavailable, "too many connections").Write(conn)
			conn.Close()
			continue
		}
		p := &Peer{
			ID:          s.nextID.Add(1),
			Cred:        cred,
			ConnectedAt: time.Now(),
			conn:        conn,
		}
		s.peers[p.ID] = p
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(p)
	}
}

func (s *Server) handleConnection(p *Peer) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.peers, p.ID)
		if p.events != nil {
			close(p.events)
			p.events = nil
		}
		s.mu.Unlock()
		p.conn.Close()
	}()

	for {
		if s.ctx.Err() != nil {
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		msg, err := ReadMessage(p.conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if s.send(p, NewMessage(MsgPing, s.nextRequestID.Add(1), nil)) != nil {
					return
				}
				continue
			}
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("ipc read failed", "peer", p.ID, "error", err)
			}
			return
		}

		response, err := s.processMessage(p, msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if response != nil {
			if err := s.send(p, response); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(p *Peer, msg *Message) error {
	return p.send(msg, s.cfg.WriteTimeout)
}

func (s *Server) processMessage(p *Peer, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	case MsgPong:
		return nil, nil
	case MsgSubscribe:
		s.subscribe(p)
		return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{Success: true})
	case MsgUnsubscribe:
		s.unsubscribe(p)
		return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{Success: true})
	}
	if s.handler == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
	}
	return s.handler.HandleMessage(s.ctx, p, msg)
}

func (s *Server) subscribe(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.events != nil {
		return
	}
	events := make(chan *Message, s.cfg.EventQueue)
	p.events = events

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range events {
			if err := s.send(p, msg); err != nil {
				p.conn.Close()
				for range events {
				}
				return
			}
		}
	}()
}

func (s *Server) unsubscribe(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.events != nil {
		close(p.events)
		p.events = nil
	}
}
