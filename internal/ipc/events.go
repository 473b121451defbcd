package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// EventsPath is the URL path of the WebSocket event stream.
const EventsPath = "/events"

// Keepalive timing for event stream clients.
const (
	eventsPingEvery = 15 * time.Second
	eventsPongWait  = 45 * time.Second
	eventsWriteWait = 5 * time.Second
)

// CheckLoopback rejects addresses that are not host:port on a loopback
// interface. State events include key codes, so they never leave the host.
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%s is not a loopback address", addr)
	}
	return nil
}

type eventClient struct {
	conn   *websocket.Conn
	events chan StateEvent
	done   chan struct{}
	once   sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// EventStream serves state events as JSON text frames to WebSocket clients
// such as on-screen overlays.
type EventStream struct {
	addr    string
	origins []string
	queue   int
	log     *slog.Logger

	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewEventStream creates a stream on addr. Browser origins other than
// localhost pages must be listed in origins.
func NewEventStream(addr string, origins []string, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	s := &EventStream{
		addr:    addr,
		origins: origins,
		queue:   256,
		log:     logger.With("component", "events"),
		clients: make(map[*eventClient]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// checkOrigin accepts non-browser clients (no Origin header), localhost
// pages and the configured origins.
func (s *EventStream) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start listens and serves in the background.
func (s *EventStream) Start() error {
	if err := CheckLoopback(s.addr); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc(EventsPath, s.serveWS)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("event stream stopped", "error", err)
		}
	}()
	s.log.Info("event stream listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, which differs from the configured one
// when port 0 was requested.
func (s *EventStream) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// ClientCount returns the number of connected clients.
func (s *EventStream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many events were discarded for slow clients.
func (s *EventStream) Dropped() uint64 { return s.dropped.Load() }

// Broadcast queues ev for every client without blocking.
func (s *EventStream) Broadcast(ev StateEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.events <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Stop closes the listener and every client.
func (s *EventStream) Stop() error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Close()

	s.mu.Lock()
	clients := make([]*eventClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
	s.wg.Wait()
	return err
}

func (s *EventStream) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &eventClient{
		conn:   conn,
		events: make(chan StateEvent, s.queue),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("event client connected", "remote", r.RemoteAddr)

	s.wg.Add(2)
	go s.readLoop(c)
	go s.writeLoop(c)
}

// readLoop processes control frames. Clients are not expected to send data.
func (s *EventStream) readLoop(c *eventClient) {
	defer s.wg.Done()
	defer s.drop(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *EventStream) writeLoop(c *eventClient) {
	defer s.wg.Done()
	defer s.drop(c)

	ping := time.NewTicker(eventsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *EventStream) drop(c *eventClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	if ok {
		s.log.Debug("event client disconnected")
	}
}
