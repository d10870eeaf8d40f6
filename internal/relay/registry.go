package relay

import "errors"

var (
	// ErrClientClosed is returned by Client.Send after the connection
	// has been closed.
	ErrClientClosed = errors.New("relay: client closed")
	// ErrSlowClient is returned by Client.Send when the client's send
	// buffer is full. The relay treats it like a disconnect.
	ErrSlowClient = errors.New("relay: client send buffer full")
)

// Client is one live bidirectional connection.
//
// Send must not block: it either queues frame for delivery, preserving
// call order, or returns an error. Close must be idempotent and must not
// call back into the Relay.
type Client interface {
	ID() string
	Send(frame []byte) error
	Close()
}

// registry is the set of every live connection.
type registry struct {
	clients map[Client]struct{}
}

func newRegistry() *registry {
	return &registry{clients: make(map[Client]struct{})}
}

func (g *registry) add(c Client) bool {
	if _, ok := g.clients[c]; ok {
		return false
	}
	g.clients[c] = struct{}{}
	return true
}

func (g *registry) remove(c Client) bool {
	if _, ok := g.clients[c]; !ok {
		return false
	}
	delete(g.clients, c)
	return true
}

func (g *registry) has(c Client) bool {
	_, ok := g.clients[c]
	return ok
}

// snapshot copies the membership so callers may drop clients while
// iterating.
func (g *registry) snapshot() []Client {
	out := make([]Client, 0, len(g.clients))
	for c := range g.clients {
		out = append(out, c)
	}
	return out
}

func (g *registry) len() int { return len(g.clients) }
