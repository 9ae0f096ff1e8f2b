/*
File Name:  events.go

Coordinator event enum and single dispatcher loop (spec §4.5, Design
Notes "Callback jungle vs. event loop"). Grounded on the teacher's
Network.go packetWorker -- a single consumer draining one channel --
generalized from "one channel of decrypted UDP packets" to "one
channel of every event the coordinator reacts to" (transport events,
timers, and outbound send requests), so all mutable state (peer table,
dedup set, store-and-forward maps, session keys) is touched only from
this one goroutine and needs no locking of its own.
*/

package node

import "time"

type eventKind int

const (
	evPeerSeen eventKind = iota
	evPeerLost
	evBytes
	evTimerAnnounce
	evTimerGC
	evSend
)

func (k eventKind) String() string {
	switch k {
	case evPeerSeen:
		return "PeerSeen"
	case evPeerLost:
		return "PeerLost"
	case evBytes:
		return "IncomingBytes"
	case evTimerAnnounce:
		return "Timer(announce)"
	case evTimerGC:
		return "Timer(gc)"
	case evSend:
		return "Send"
	default:
		return "Unknown"
	}
}

type event struct {
	kind   eventKind
	peerID string
	digest []byte
	data   []byte
	send   *sendRequest
}

// sendRequest carries one facade-originated outbound send through the
// loop so signature and nonce generation for a given message never
// race with another send (spec §4.5 "send queue serializes outbound
// encodes").
type sendRequest struct {
	broadcast   bool
	channel     string
	recipientID string
	text        string
	queue       bool
	favorite    bool
	result      chan sendOutcome
}

type sendOutcome struct {
	ok  bool
	err error
}

// onPeer is the transport.Handlers.OnPeer callback.
func (n *Node) onPeer(peerID string, digest []byte) {
	n.postEvent(event{kind: evPeerSeen, peerID: peerID, digest: digest})
}

// onBytes is the transport.Handlers.OnBytes callback.
func (n *Node) onBytes(peerID string, data []byte) {
	n.postEvent(event{kind: evBytes, peerID: peerID, data: data})
}

// onPeerLost is the transport.Handlers.OnPeerLost callback.
func (n *Node) onPeerLost(peerID string) {
	n.postEvent(event{kind: evPeerLost, peerID: peerID})
}

// loop is the single coordinator goroutine. It owns every piece of
// mutable protocol state and exits once stopCh is closed and the
// events channel has been drained.
func (n *Node) loop() {
	defer close(n.doneCh)

	for {
		select {
		case <-n.stopCh:
			n.drainRemaining()
			return
		default:
		}

		select {
		case <-n.stopCh:
			n.drainRemaining()
			return
		case e := <-n.events:
			n.handleEvent(e)
		}
	}
}

// drainRemaining processes whatever is already queued so in-flight
// sends get a result, without admitting any new transport events.
func (n *Node) drainRemaining() {
	for {
		select {
		case e := <-n.events:
			if e.kind == evSend {
				n.handleEvent(e)
			}
		default:
			return
		}
	}
}

func (n *Node) handleEvent(e event) {
	switch e.kind {
	case evPeerSeen:
		n.handlePeerSeen(e.peerID, e.digest)
	case evPeerLost:
		n.handlePeerLost(e.peerID)
	case evBytes:
		n.handleInbound(e.peerID, e.data)
	case evTimerAnnounce:
		n.handleAnnounceTimer()
	case evTimerGC:
		n.handleGCTimer()
	case evSend:
		n.handleSend(e.send)
	}
}

func (n *Node) handlePeerSeen(peerID string, digest []byte) {
	_, isNew := n.peers.Sighting(peerID, 0)
	if isNew || !n.keys.HasSession(peerID) {
		n.sendKeyExchange(peerID)
	}
}

// handlePeerLost evicts peerID on a transport-level disconnect, same as
// an explicit LEAVE packet (spec §4.9's eviction triggers name only the
// LEAVE packet and the 5-minute silence window, but a driver reporting
// a peer gone is at least as final as either -- keeping it in the
// table until the silence window elapsed would contradict the
// transport's own signal).
func (n *Node) handlePeerLost(peerID string) {
	info := peerInfoOrZero(n.peers, peerID)
	n.peers.Remove(peerID)
	n.keys.Remove(peerID)
	n.publishPeerEvent(PeerEvent{Kind: PeerLost, Info: info})
}

func (n *Node) handleAnnounceTimer() {
	n.broadcastAnnounce()
}

func (n *Node) handleGCTimer() {
	now := time.Now()
	for _, id := range n.peers.EvictStale(now) {
		n.keys.Remove(id)
	}
	n.dedup.GC(now)
	n.reasm.GC(now)
	n.fwd.GC(now)
}
