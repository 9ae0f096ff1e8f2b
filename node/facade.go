/*
File Name:  facade.go

Public service facade (spec §6.4). Grounded on the teacher's
mobile/mobile.go thin-wrapper shape: a handful of methods forwarding
into the real implementation, here posting a sendRequest onto the
coordinator loop and waiting for its result instead of calling a
package-level singleton.
*/

package node

import (
	"github.com/meshchat/core/peer"
)

const subscriberBufferSize = 32

func (n *Node) send(req *sendRequest) (bool, error) {
	if n.Status() != Running {
		return false, ErrNotRunning
	}

	req.result = make(chan sendOutcome, 1)
	n.postEvent(event{kind: evSend, send: req})

	outcome := <-req.result
	return outcome.ok, outcome.err
}

// SendBroadcast sends a public message to every reachable peer.
func (n *Node) SendBroadcast(text string) (bool, error) {
	return n.send(&sendRequest{broadcast: true, text: text})
}

// SendPrivate sends an end-to-end-encrypted message to one peer.
func (n *Node) SendPrivate(peerID, text string) (bool, error) {
	if len(peerID) == 0 || len(peerID) > 8 {
		return false, ErrInvalidPeer
	}
	return n.send(&sendRequest{recipientID: peerID, text: text})
}

// SendChannel sends a public message tagged with a channel name.
func (n *Node) SendChannel(name, text string) (bool, error) {
	return n.send(&sendRequest{channel: name, text: text})
}

// QueueForDelivery places content directly into the store-and-forward
// buffer for peerID (spec §4.8 "generated by higher layers for later
// delivery"), to be released automatically the next time peerID
// announces. Unlike SendPrivate it never requires an established
// session key.
func (n *Node) QueueForDelivery(peerID, text string, favorite bool) (bool, error) {
	if len(peerID) == 0 || len(peerID) > 8 {
		return false, ErrInvalidPeer
	}
	return n.send(&sendRequest{recipientID: peerID, text: text, queue: true, favorite: favorite})
}

// JoinChannel records local membership in a channel.
func (n *Node) JoinChannel(name string) error {
	if n.Status() != Running {
		return ErrNotRunning
	}
	n.channelsMu.Lock()
	n.channels[name] = true
	n.channelsMu.Unlock()
	return nil
}

// LeaveChannel removes local membership in a channel.
func (n *Node) LeaveChannel(name string) error {
	if n.Status() != Running {
		return ErrNotRunning
	}
	n.channelsMu.Lock()
	delete(n.channels, name)
	n.channelsMu.Unlock()
	return nil
}

// Channels returns the set of locally joined channel names.
func (n *Node) Channels() []string {
	n.channelsMu.Lock()
	defer n.channelsMu.Unlock()
	out := make([]string, 0, len(n.channels))
	for name := range n.channels {
		out = append(out, name)
	}
	return out
}

// Peers returns a snapshot of every known peer.
func (n *Node) Peers() []*peer.Info {
	return n.peers.All()
}

// SetFavorite marks or unmarks peerID as a favorite (SPEC_FULL.md §20).
func (n *Node) SetFavorite(peerID string, favorite bool) error {
	n.peers.SetFavorite(peerID, favorite)
	if favorite {
		return n.favorites.Add(peerID)
	}
	n.favorites.Remove(peerID)
	return nil
}

// Block adds peerID to the persisted blocklist.
func (n *Node) Block(peerID string) error {
	return n.blocklist.Add(peerID)
}

// Unblock removes peerID from the persisted blocklist.
func (n *Node) Unblock(peerID string) {
	n.blocklist.Remove(peerID)
}

// SubscribeMessages returns a channel of delivered incoming messages.
func (n *Node) SubscribeMessages() <-chan IncomingMessage {
	ch := make(chan IncomingMessage, subscriberBufferSize)
	n.subMu.Lock()
	n.messageSubs = append(n.messageSubs, ch)
	n.subMu.Unlock()
	return ch
}

// SubscribePeers returns a channel of peer-discovered/updated/lost events.
func (n *Node) SubscribePeers() <-chan PeerEvent {
	ch := make(chan PeerEvent, subscriberBufferSize)
	n.subMu.Lock()
	n.peerSubs = append(n.peerSubs, ch)
	n.subMu.Unlock()
	return ch
}

// SubscribeStatus returns a channel of lifecycle status transitions.
func (n *Node) SubscribeStatus() <-chan Status {
	ch := make(chan Status, subscriberBufferSize)
	n.subMu.Lock()
	n.statusSubs = append(n.statusSubs, ch)
	n.subMu.Unlock()
	return ch
}

// SubscribeLogs returns a channel of formatted log lines.
func (n *Node) SubscribeLogs() <-chan string {
	ch := make(chan string, subscriberBufferSize)
	n.subMu.Lock()
	n.logSubs = append(n.logSubs, ch)
	n.subMu.Unlock()
	return ch
}
