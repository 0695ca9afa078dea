package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-monolith/mono/pkg/types"
)

// ErrClientClosed is returned when sending to a client that has been closed.
var ErrClientClosed = errors.New("client closed")

// Transport is the write side of one live connection.
type Transport interface {
	// Send writes one text frame.
	Send(data []byte) error
	// Ping writes a liveness probe; the peer's pong must call Client.MarkAlive.
	Ping() error
	// Close terminates the connection.
	Close() error
}

// Client is a registered connection.
type Client struct {
	ID        string
	transport Transport
	writeMu   sync.Mutex
	open      atomic.Bool
	alive     atomic.Bool
}

func newClient(id string, t Transport) *Client {
	c := &Client{ID: id, transport: t}
	c.open.Store(true)
	c.alive.Store(true)
	return c
}

// Send writes data to the client. Writes to one client never interleave.
func (c *Client) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.open.Load() {
		return ErrClientClosed
	}
	return c.transport.Send(data)
}

// Ping sends a liveness probe.
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.open.Load() {
		return ErrClientClosed
	}
	return c.transport.Ping()
}

// Close terminates the connection. It waits for an in-flight write, and no
// write reaches the transport once it returns. Safe to call more than once.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	return c.transport.Close()
}

// IsOpen reports whether the client has not been closed.
func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// MarkAlive records a pong from the peer.
func (c *Client) MarkAlive() {
	c.alive.Store(true)
}

// IsAlive reports whether the peer answered since the last sweep.
func (c *Client) IsAlive() bool {
	return c.alive.Load()
}

// Registry maps connection ids to live clients.
type Registry struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  types.Logger
}

// New creates an empty registry.
func New(logger types.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a connection. A previous client with the same id is closed
// and replaced.
func (r *Registry) Register(id string, t Transport) *Client {
	c := newClient(id, t)

	r.mu.Lock()
	old := r.clients[id]
	r.clients[id] = c
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	r.logger.Debug("Client registered", "connId", id)
	return c
}

// Lookup returns the client for id.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Unregister removes and closes the client for id. It is a no-op when the id
// is unknown and reports whether a client was removed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	_ = c.Close()
	r.logger.Debug("Client unregistered", "connId", id)
	return true
}

// Sweep terminates clients that did not answer the previous ping, then clears
// the alive flag of the rest and pings them. It returns the number evicted.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	evicted := 0
	for _, c := range clients {
		if !c.alive.Load() || !c.IsOpen() {
			if r.Unregister(c.ID) {
				evicted++
			}
			continue
		}
		c.alive.Store(false)
		if err := c.Ping(); err != nil {
			r.logger.Warn("Ping failed", "connId", c.ID, "error", err)
			if r.Unregister(c.ID) {
				evicted++
			}
		}
	}
	if evicted > 0 {
		r.logger.Info("Evicted unresponsive clients", "count", evicted)
	}
	return evicted
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes and removes every client.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}
