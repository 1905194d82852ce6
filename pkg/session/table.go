// Package session implements the server's session table: the record of
// every established peer, keyed by UDP source endpoint.
//
// Table is deliberately not safe for concurrent use on its own — it
// expects an external lock (held by sessiontable.Manager) to guard both it
// and the paired route table as a single mutex domain, so that a
// re-handshake can replace a session and its route atomically.
package session

import (
	"errors"
	"time"

	"github.com/pqtun/pqtun/pkg/handshake"
)

// ErrFull indicates the table is at capacity and cannot admit a new peer.
// The caller's response to this is to silently drop the ClientHello rather
// than reply with an error, so a saturated server gives no oracle for its
// occupancy.
var ErrFull = errors.New("session: table at capacity")

// Entry is one established peer's session state.
type Entry struct {
	SessionKey   [handshake.SessionKeySize]byte
	VirtualIP    string
	PeerEndpoint string
	ClientID     string
	CreatedAt    time.Time
}

// Table maps peer UDP endpoint ("host:port") to that peer's session Entry.
type Table struct {
	entries  map[string]*Entry
	capacity int
}

// NewTable constructs an empty table with the given capacity bound.
func NewTable(capacity int) *Table {
	return &Table{
		entries:  make(map[string]*Entry),
		capacity: capacity,
	}
}

// Get looks up the session for a peer endpoint.
func (t *Table) Get(peerEndpoint string) (*Entry, bool) {
	e, ok := t.entries[peerEndpoint]
	return e, ok
}

// Put inserts or replaces the session for a peer endpoint. Replacing an
// existing entry for the same endpoint never counts against capacity — a
// re-handshake from an already-known peer always succeeds. Admitting a new
// endpoint past capacity fails with ErrFull.
func (t *Table) Put(peerEndpoint string, e *Entry) error {
	if _, exists := t.entries[peerEndpoint]; !exists && len(t.entries) >= t.capacity {
		return ErrFull
	}
	t.entries[peerEndpoint] = e
	return nil
}

// Delete removes the session for a peer endpoint, if any.
func (t *Table) Delete(peerEndpoint string) {
	delete(t.entries, peerEndpoint)
}

// Len reports the number of established sessions.
func (t *Table) Len() int {
	return len(t.entries)
}
