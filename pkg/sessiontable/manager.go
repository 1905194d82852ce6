// Package sessiontable ties the session and route tables together under a
// single coarse RWMutex, matching the server's one-mutex-domain design:
// a re-handshake from a known endpoint must replace its session and route
// entry as one atomic step, and a forwarding lookup must never observe a
// route whose session has not yet been installed.
package sessiontable

import (
	"sync"

	"github.com/pqtun/pqtun/pkg/routetable"
	"github.com/pqtun/pqtun/pkg/session"
)

// DefaultCapacity is the session table's capacity bound absent
// configuration, chosen to keep a single server comfortably inside one UDP
// socket's realistic peer count.
const DefaultCapacity = 1024

// Manager owns the session and route tables and the lock that guards both.
type Manager struct {
	mu       sync.RWMutex
	sessions *session.Table
	routes   *routetable.Table
}

// NewManager constructs a Manager with the given session capacity.
func NewManager(capacity int) *Manager {
	return &Manager{
		sessions: session.NewTable(capacity),
		routes:   routetable.NewTable(),
	}
}

// Establish atomically installs a session and its route for peerEndpoint.
// If a session already exists for a different peer endpoint at the same
// virtual IP, that virtual IP's route is overwritten to point at
// peerEndpoint. If this peer endpoint previously routed a different
// virtual IP (a re-handshake from the same endpoint with a new address),
// its old route is removed first so the tables never carry two routes to
// one peer. A client that rebinds to a new source port is a new endpoint;
// its old endpoint's session is left in place.
func (m *Manager) Establish(peerEndpoint string, entry *session.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions.Get(peerEndpoint); !exists {
		if err := m.sessions.Put(peerEndpoint, entry); err != nil {
			return err
		}
	} else {
		// Re-handshake from the same endpoint: replace unconditionally,
		// capacity was already spent on the first handshake.
		m.routes.DeleteByEndpoint(peerEndpoint)
		_ = m.sessions.Put(peerEndpoint, entry)
	}

	m.routes.Set(entry.VirtualIP, peerEndpoint)
	return nil
}

// Session looks up the established session for a peer endpoint.
func (m *Manager) Session(peerEndpoint string) (*session.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions.Get(peerEndpoint)
}

// RouteEndpoint resolves the peer endpoint currently routing a virtual IP,
// for forwarding a decrypted frame toward its inner destination.
func (m *Manager) RouteEndpoint(virtualIP string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.routes.Lookup(virtualIP)
}

// Remove evicts a peer's session and route together.
func (m *Manager) Remove(peerEndpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes.DeleteByEndpoint(peerEndpoint)
	m.sessions.Delete(peerEndpoint)
}

// Len reports the number of established sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions.Len()
}
