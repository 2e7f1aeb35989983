package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNoSession = errors.New("no ws session")

// DefaultWriteTimeout bounds a single frame write to a live session.
const DefaultWriteTimeout = 2 * time.Second

// liveFrame is what a connected app receives; it never carries the token.
type liveFrame struct {
	Type    string            `json:"type"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Channel string            `json:"channel"`
	Data    map[string]string `json:"data,omitempty"`
}

// WSSession represents a connected user session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send writes one frame, failing once timeout passes without the client
// draining its socket.
func (s *WSSession) Send(msg Message, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(liveFrame{Type: "notification", Title: msg.Title, Body: msg.Body, Channel: msg.Channel, Data: msg.Data})
}

// WSRegistry holds the open in-app sessions, one per user.
type WSRegistry struct {
	// WriteTimeout caps each write; a session that misses it is closed.
	WriteTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{WriteTimeout: DefaultWriteTimeout, sessions: make(map[string]*WSSession)}
}

// Add registers conn for userID, closing any session it replaces.
func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	old := r.sessions[userID]
	r.sessions[userID] = &WSSession{conn: conn}
	r.mu.Unlock()
	if old != nil && old.conn != conn {
		_ = old.conn.Close()
	}
}

// Remove drops the session for userID if it still belongs to conn.
func (r *WSRegistry) Remove(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok && s.conn == conn {
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) Connected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// Deliver writes msg to the user's open session. A failed or timed out
// write drops and closes the session.
func (r *WSRegistry) Deliver(userID string, msg Message) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	timeout := r.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	if err := s.Send(msg, timeout); err != nil {
		r.Remove(userID, s.conn)
		_ = s.conn.Close()
		return err
	}
	return nil
}
