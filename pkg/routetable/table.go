// Package routetable implements the server's route table: overlay virtual
// IP to peer UDP endpoint, consulted when forwarding a decrypted frame
// toward its inner destination.
//
// Like session.Table, Table has no lock of its own — it shares the mutex
// domain of sessiontable.Manager so a session and its route can be
// installed or replaced as one atomic step.
package routetable

// Table maps overlay virtual IP ("10.0.0.2") to the peer's current UDP
// endpoint ("host:port").
type Table struct {
	routes map[string]string
}

// NewTable constructs an empty route table.
func NewTable() *Table {
	return &Table{routes: make(map[string]string)}
}

// Lookup returns the peer endpoint currently routing a virtual IP.
func (t *Table) Lookup(virtualIP string) (string, bool) {
	endpoint, ok := t.routes[virtualIP]
	return endpoint, ok
}

// Set installs or replaces the route for a virtual IP.
func (t *Table) Set(virtualIP, peerEndpoint string) {
	t.routes[virtualIP] = peerEndpoint
}

// Delete removes the route for a virtual IP, if any.
func (t *Table) Delete(virtualIP string) {
	delete(t.routes, virtualIP)
}

// DeleteByEndpoint removes whichever route (at most one, by invariant)
// currently points at peerEndpoint. Used when a peer's session is evicted
// or replaced and its old route must not linger.
func (t *Table) DeleteByEndpoint(peerEndpoint string) {
	for vip, endpoint := range t.routes {
		if endpoint == peerEndpoint {
			delete(t.routes, vip)
		}
	}
}

// Len reports the number of installed routes.
func (t *Table) Len() int {
	return len(t.routes)
}
