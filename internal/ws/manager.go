// Package ws serves the chat widget over a WebSocket.
package ws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the live connection of each chat session. A session
// has at most one connection; a newer one replaces the older.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{active: make(map[string]*websocket.Conn)}
}

// GetActive returns the connection of a chat session.
func (m *SessionManager) GetActive(sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// Register binds conn to sessionID, closing any previous connection.
func (m *SessionManager) Register(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	existing, ok := m.active[sessionID]
	m.active[sessionID] = conn
	m.mu.Unlock()

	// Close waits for the handshake; never hold the lock across it.
	if ok && existing != conn {
		go func() { _ = existing.Close(websocket.StatusNormalClosure, "session opened elsewhere") }()
	}
	slog.Debug("Chat socket registered", "session_id", sessionID)
}

// Unregister removes conn if it is still the session's connection.
func (m *SessionManager) Unregister(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[sessionID]; ok && current == conn {
		delete(m.active, sessionID)
		slog.Debug("Chat socket unregistered", "session_id", sessionID)
	}
}

// Len returns the number of live connections.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll closes every connection, used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.active))
	for sid, conn := range m.active {
		conns = append(conns, conn)
		delete(m.active, sid)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	wg.Wait()
}
