/*
File Name:  driver.go

Transport driver contract (spec §6.3). The core consumes this narrow
interface without knowing anything about BLE, GATT, or radio details,
the same way the teacher's Network type exposed only send(ip, port,
raw) to the protocol dispatcher in Network.go.
*/

package transport

// Driver is implemented by a concrete transport (e.g. transport/blegatt,
// or transport/fake for tests).
type Driver interface {
	// Emit sends data to peerID, or broadcasts to all connected
	// neighbors if peerID is nil.
	Emit(peerID *string, data []byte) error

	// Start begins advertising/scanning and registers the driver's
	// event callbacks. It must not block.
	Start(handlers Handlers) error

	// Stop tears down advertising/scanning/connections.
	Stop() error
}

// Handlers are the callbacks a Driver invokes on transport events
// (spec §6.3: on_peer, on_bytes, on_peer_lost). Each call happens on
// a driver-owned goroutine; handlers must be cheap or hand off
// (the node package posts these directly onto its single event
// channel, per its cooperative event-loop design).
type Handlers struct {
	OnPeer     func(peerID string, digest []byte)
	OnBytes    func(peerID string, data []byte)
	OnPeerLost func(peerID string)
}
