/*
File Name:  dispatch.go

Inbound routing/relay state machine (spec §4.7). Grounded on the
teacher's Network.go packetWorker big dispatch, generalized from
Peernet's blockchain/DHT command switch to the 1..12 packet-type
registry in spec §6.1. Runs entirely on the coordinator loop goroutine
(events.go), so the peer table, dedup set, key store, and reassembler
need no locking here.
*/

package node

import (
	"github.com/meshchat/core/protocol"
)

// handleInbound is step 1-4 of spec §4.7 for one packet arriving from
// peerID (which may differ from the packet's claimed sender on a
// multi-hop relay -- only p.SenderID is ever trusted as identity).
func (n *Node) handleInbound(peerID string, data []byte) {
	p, err := protocol.Decode(data)
	if err != nil {
		n.log.WithError(err).WithField("from", peerID).Debug("dropping undecodable packet")
		return
	}

	id := computeDedupID(p.SenderID, p.Payload, p.TimestampMs)
	if n.dedup.Admit(id) {
		return // duplicate: dropped silently, never relayed again (spec §8 property 7)
	}

	if n.blocklist.Contains(bytesToID(p.SenderID)) {
		// Blocked sender: still participate in the flood (relay below)
		// but never surface its content or update peer/session state.
		if p.TTL > 0 {
			n.relay(p)
		}
		return
	}

	n.dispatchByType(p)

	if p.TTL > 0 {
		n.relay(p)
	}
}

func (n *Node) dispatchByType(p *protocol.Packet) {
	senderID := bytesToID(p.SenderID)

	switch p.Type {
	case protocol.TypeKeyExchange:
		n.handleKeyExchange(senderID, p)
	case protocol.TypeAnnounce:
		n.handleAnnounce(senderID, p)
	case protocol.TypeLeave:
		n.handleLeave(senderID)
	case protocol.TypeMessage:
		n.handleMessage(senderID, p)
	case protocol.TypeFragmentStart, protocol.TypeFragmentContinue, protocol.TypeFragmentEnd:
		n.handleFragment(senderID, p)
	default:
		// Channel announce/retention, delivery ack, delivery status
		// request, read receipt: surfaced only as a log line (spec
		// §4.7 "parse and surface as events; do not crash on unknown
		// sub-fields"). None of these carry application content this
		// tree's facade exposes a stream for.
		n.log.WithField("type", p.Type).WithField("from", senderID).Debug("received auxiliary protocol packet")
	}
}

func (n *Node) handleKeyExchange(senderID string, p *protocol.Packet) {
	if _, err := n.keys.AddPeerKey(senderID, p.Payload); err != nil {
		n.log.WithError(err).WithField("from", senderID).Debug("malformed key exchange")
		return
	}
	n.peers.Sighting(senderID, 0)
	n.peers.MarkSession(senderID)

	guard := exchangeGuardKey(senderID, p.Payload)
	n.exchangeMu.Lock()
	seen := n.exchangeSeen[guard]
	n.exchangeSeen[guard] = true
	n.exchangeMu.Unlock()

	if !seen {
		n.sendKeyExchange(senderID)
	}
}

func exchangeGuardKey(senderID string, combined []byte) string {
	n := len(combined)
	if n > 16 {
		n = 16
	}
	return senderID + string(combined[:n])
}

// handleLeave evicts senderID from the peer table and drops its key
// material (spec §4.9 eviction trigger (a) "LEAVE packet" -- distinct
// from the 5-minute silence trigger (b), which EvictStale in
// events.go's gc timer handles separately).
func (n *Node) handleLeave(senderID string) {
	info := peerInfoOrZero(n.peers, senderID)
	n.peers.Remove(senderID)
	n.keys.Remove(senderID)
	n.publishPeerEvent(PeerEvent{Kind: PeerLost, Info: info})
}

func (n *Node) handleAnnounce(senderID string, p *protocol.Packet) {
	_, isNew := n.peers.Sighting(senderID, 0)
	n.peers.SetNickname(senderID, string(p.Payload))

	kind := PeerUpdated
	if isNew {
		kind = PeerDiscovered
	}
	n.publishPeerEvent(PeerEvent{Kind: kind, Info: peerInfoOrZero(n.peers, senderID)})

	for _, msg := range n.fwd.Drain(senderID) {
		if msg.IsPrivate {
			n.sendPrivateEstablished(senderID, string(msg.Content))
		} else {
			n.sendBroadcastOrChannel(string(msg.Content), msg.Channel)
		}
	}
}

func (n *Node) handleMessage(senderID string, p *protocol.Packet) {
	isBroadcast := !p.HasRecipient || p.RecipientID == protocol.BroadcastPeerID

	switch {
	case isBroadcast:
		n.deliverBroadcastMessage(senderID, p)
	case bytesToID(p.RecipientID) == n.idStr:
		n.deliverPrivateMessage(senderID, p)
	default:
		// Private message addressed to a third party: we have no key
		// for it, so only relay (handled by the caller).
	}
}

func (n *Node) deliverBroadcastMessage(senderID string, p *protocol.Packet) {
	if p.HasSignature {
		if _, hasKey := n.keys.Get(senderID); hasKey {
			signedBytes, err := protocol.SignedBytes(p)
			if err != nil {
				return
			}
			if !n.keys.Verify(senderID, signedBytes, p.Signature) {
				return
			}
		}
		// No recorded signing key for this sender: accept unsigned
		// per spec §4.7 "if unknown, accept unsigned".
	}

	record, err := protocol.DecodeRecord(p.Payload)
	if err != nil {
		n.log.WithError(err).WithField("from", senderID).Debug("dropping malformed broadcast record")
		return
	}

	n.publishMessage(IncomingMessage{
		SenderID:       senderID,
		SenderNickname: record.SenderNickname,
		Content:        string(record.Content),
		IsPrivate:      false,
		Channel:        record.Channel,
		Mentions:       record.Mentions,
		TimestampMs:    record.TimestampMs,
	})
}

func (n *Node) deliverPrivateMessage(senderID string, p *protocol.Packet) {
	if !p.HasSignature {
		return
	}
	signedBytes, err := protocol.SignedBytes(p)
	if err != nil {
		return
	}
	if !n.keys.Verify(senderID, signedBytes, p.Signature) {
		return
	}

	padded, err := n.keys.Decrypt(senderID, p.Payload)
	if err != nil {
		return
	}
	unpadded := protocol.Unpad(padded)

	record, err := protocol.DecodeRecord(unpadded)
	if err != nil {
		n.log.WithError(err).WithField("from", senderID).Debug("dropping malformed private record")
		return
	}

	n.publishMessage(IncomingMessage{
		SenderID:       senderID,
		SenderNickname: record.SenderNickname,
		Content:        string(record.Content),
		IsPrivate:      true,
		TimestampMs:    record.TimestampMs,
	})
}

func (n *Node) handleFragment(senderID string, p *protocol.Packet) {
	messageID, index, chunk, err := decodeFragmentEnvelope(p.Payload)
	if err != nil {
		n.log.WithError(err).WithField("from", senderID).Debug("dropping malformed fragment")
		return
	}

	reassembled, ok, err := n.reasm.Add(p.SenderID, messageID, index, p.Type == protocol.TypeFragmentEnd, chunk)
	if err != nil {
		n.log.WithError(err).WithField("from", senderID).Debug("fragment buffer exceeded")
		return
	}
	if !ok {
		return
	}

	// p.HasSignature/p.Signature came from whichever fragment just
	// completed reassembly, but sendFragmented stamps that same pair
	// onto every fragment of a given message with the enclosed MESSAGE
	// packet's own signature (over Type=MESSAGE + this SenderID/
	// RecipientID + the reassembled payload), never a per-fragment one
	// -- so copying them straight onto the synthetic packet here
	// reproduces exactly what protocol.SignedBytes would have signed
	// had the message never been fragmented.
	synthetic := &protocol.Packet{
		Type:         protocol.TypeMessage,
		TTL:          p.TTL,
		TimestampMs:  p.TimestampMs,
		SenderID:     p.SenderID,
		HasRecipient: p.HasRecipient,
		RecipientID:  p.RecipientID,
		HasSignature: p.HasSignature,
		Signature:    p.Signature,
		Payload:      reassembled,
	}
	n.handleMessage(senderID, synthetic)
}

// relay re-emits p with its TTL decremented to every connected
// neighbor (spec §4.7 step 4). The signature is untouched and stays
// valid since it never covered TTL (see protocol.SignedBytes).
func (n *Node) relay(p *protocol.Packet) {
	relayed := *p
	relayed.TTL--

	wire, err := protocol.Encode(&relayed)
	if err != nil {
		return
	}
	if err := n.transport.Emit(nil, wire); err != nil {
		n.log.WithError(err).Debug("relay emit failed")
	}
}
