/*
File Name:  pubsub.go

Event-stream subscriber fan-out (spec §6.4 "Event streams: incoming
messages, peer-discovered/peer-updated, status changes, log lines").
Grounded on the teacher's Backend.peerMonitor ([]chan<- *PeerInfo, see
Peernet.go/Peer.go) -- generalized to one such subscriber slice per
stream kind. Publishing never blocks the loop: a full subscriber
channel drops the event for that subscriber rather than stalling.
*/

package node

import "github.com/meshchat/core/peer"

// IncomingMessage is delivered to message subscribers (spec §6.4).
type IncomingMessage struct {
	SenderID          string
	SenderNickname    string
	Content           string
	IsPrivate         bool
	Channel           string
	Mentions          []string
	RecipientNickname string
	TimestampMs       uint64
}

// PeerEventKind distinguishes peer-discovered from peer-updated/lost.
type PeerEventKind int

const (
	PeerDiscovered PeerEventKind = iota
	PeerUpdated
	PeerLost
)

// PeerEvent is delivered to peer subscribers.
type PeerEvent struct {
	Kind PeerEventKind
	Info peer.Info
}

func peerInfoOrZero(table *peer.Table, id string) peer.Info {
	if info, ok := table.Get(id); ok {
		return *info
	}
	return peer.Info{ID: id}
}

func (n *Node) publishMessage(msg IncomingMessage) {
	n.subMu.Lock()
	subs := n.messageSubs
	n.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (n *Node) publishPeerEvent(ev PeerEvent) {
	n.subMu.Lock()
	subs := n.peerSubs
	n.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (n *Node) publishStatus(s Status) {
	n.subMu.Lock()
	subs := n.statusSubs
	n.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (n *Node) publishLog(line string) {
	n.subMu.Lock()
	subs := n.logSubs
	n.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- line:
		default:
		}
	}
}
