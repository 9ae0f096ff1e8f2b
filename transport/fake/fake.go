/*
File Name:  fake.go

In-memory mesh-of-nodes fake transport. Not part of the spec; needed
to drive the end-to-end scenarios (spec §8 S1-S6) without real BLE
hardware, the way a teacher-style integration test would normally run
against loopback UDP sockets.
*/

package fake

import (
	"sync"

	"github.com/meshchat/core/transport"
)

// Mesh is a shared rendezvous that fake Driver instances register
// with; Emit on one driver delivers to every other registered driver's
// OnBytes, simulating a single BLE broadcast domain. Per-link drop can
// be simulated via Mesh.Block.
type Mesh struct {
	mu      sync.Mutex
	drivers map[string]*Driver
	blocked map[[2]string]bool
}

// NewMesh creates an empty fake mesh.
func NewMesh() *Mesh {
	return &Mesh{drivers: make(map[string]*Driver), blocked: make(map[[2]string]bool)}
}

// Block prevents packets emitted by `from` from reaching `to`,
// simulating two nodes being out of radio range of each other.
func (m *Mesh) Block(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[[2]string{from, to}] = true
}

func (m *Mesh) isBlocked(from, to string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked[[2]string{from, to}]
}

// Driver is a transport.Driver backed by a Mesh.
type Driver struct {
	mesh     *Mesh
	peerID   string
	handlers transport.Handlers
}

// NewDriver creates a driver for peerID attached to mesh. Call Start
// to register it with the mesh.
func NewDriver(mesh *Mesh, peerID string) *Driver {
	return &Driver{mesh: mesh, peerID: peerID}
}

func (d *Driver) Start(handlers transport.Handlers) error {
	d.handlers = handlers

	d.mesh.mu.Lock()
	existing := make([]*Driver, 0, len(d.mesh.drivers))
	for _, other := range d.mesh.drivers {
		existing = append(existing, other)
	}
	d.mesh.drivers[d.peerID] = d
	d.mesh.mu.Unlock()

	for _, other := range existing {
		other := other
		if d.handlers.OnPeer != nil {
			go d.handlers.OnPeer(other.peerID, nil)
		}
		if other.handlers.OnPeer != nil {
			go other.handlers.OnPeer(d.peerID, nil)
		}
	}

	return nil
}

func (d *Driver) Stop() error {
	d.mesh.mu.Lock()
	delete(d.mesh.drivers, d.peerID)
	d.mesh.mu.Unlock()

	for _, other := range d.mesh.snapshot() {
		if other.peerID != d.peerID && other.handlers.OnPeerLost != nil {
			other.handlers.OnPeerLost(d.peerID)
		}
	}
	return nil
}

func (m *Mesh) snapshot() []*Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	return out
}

// Emit delivers data to peerID (or broadcasts to every other driver
// registered on the mesh when peerID is nil), skipping any link the
// test has Blocked.
func (d *Driver) Emit(peerID *string, data []byte) error {
	for _, other := range d.mesh.snapshot() {
		if other.peerID == d.peerID {
			continue
		}
		if peerID != nil && other.peerID != *peerID {
			continue
		}
		if d.mesh.isBlocked(d.peerID, other.peerID) {
			continue
		}
		if other.handlers.OnBytes != nil {
			go other.handlers.OnBytes(d.peerID, data)
		}
	}
	return nil
}
