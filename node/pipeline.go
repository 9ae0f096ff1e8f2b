/*
File Name:  pipeline.go

Outbound message pipelines (spec §4.6). Grounded on the teacher's
Message Send.go build-serialize-sign-wrap sequence, generalized from
Peernet's blockchain-record messages to bitchat-style broadcast/
channel/private records. All outbound sends flow through the loop via
a sendRequest event, so signature and nonce generation for a given
message never race with another send (spec §4.5).
*/

package node

import (
	"fmt"
	"strings"
	"time"

	"github.com/meshchat/core/forward"
	"github.com/meshchat/core/protocol"
	"github.com/meshchat/core/relay"
)

// computeDedupID hashes a packet's (sender, payload, timestamp) tuple
// (spec §3 dedup id, Glossary).
func computeDedupID(senderID [8]byte, payload []byte, timestampMs uint64) relay.DedupID {
	return relay.ComputeDedupID(senderID, payload, timestampMs)
}

var messageIDCounter uint64

func newMessageID(senderID string) string {
	messageIDCounter++
	return fmt.Sprintf("%s-%d-%d", senderID, time.Now().UnixNano(), messageIDCounter)
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixNano() / int64(time.Millisecond))
}

func extractMentions(text string) []string {
	var mentions []string
	for _, word := range strings.Fields(text) {
		if strings.HasPrefix(word, "@") && len(word) > 1 {
			mentions = append(mentions, strings.TrimPrefix(word, "@"))
		}
	}
	return mentions
}

// signAndEncode computes the signature over the packet's wire payload
// (spec §3 invariant: "signature signs payload bytes exactly as they
// appear on the wire"), sets it, and returns the final encoded bytes.
func (n *Node) signAndEncode(p *protocol.Packet) ([]byte, error) {
	signedBytes, err := protocol.SignedBytes(p)
	if err != nil {
		return nil, err
	}
	p.Signature = n.identity.Sign(signedBytes)
	p.HasSignature = true
	return protocol.Encode(p)
}

// emitAndDedup sends wire bytes on the transport and records the
// packet's dedup id, preventing the coordinator from re-processing its
// own broadcasts when they echo back from a neighbor (Design Notes
// "Self-relay loop").
func (n *Node) emitAndDedup(recipientID *string, p *protocol.Packet) error {
	wire, err := n.signAndEncode(p)
	if err != nil {
		return err
	}
	id := computeDedupID(p.SenderID, p.Payload, p.TimestampMs)
	n.dedup.Admit(id)
	return n.transport.Emit(recipientID, wire)
}

func (n *Node) broadcastAnnounce() {
	n.mu.RLock()
	nickname := n.nickname
	n.mu.RUnlock()

	p := &protocol.Packet{
		Type:        protocol.TypeAnnounce,
		TTL:         protocol.DefaultTTL(protocol.TypeAnnounce),
		TimestampMs: nowMillis(),
		SenderID:    n.id,
		Payload:     []byte(nickname),
	}
	if err := n.emitSimple(nil, p); err != nil {
		n.log.WithError(err).Warn("announce emit failed")
	}
}

func (n *Node) sendKeyExchange(peerID string) {
	p := &protocol.Packet{
		Type:         protocol.TypeKeyExchange,
		TTL:          protocol.DefaultTTL(protocol.TypeKeyExchange),
		TimestampMs:  nowMillis(),
		SenderID:     n.id,
		HasRecipient: true,
		RecipientID:  idToBytes(peerID),
		Payload:      n.identity.CombinedPublic(),
	}
	recipient := peerID
	if err := n.emitSimple(&recipient, p); err != nil {
		n.log.WithError(err).WithField("peer", peerID).Warn("key exchange emit failed")
	}
}

func (n *Node) sendLeave() {
	p := &protocol.Packet{
		Type:        protocol.TypeLeave,
		TTL:         protocol.DefaultTTL(protocol.TypeLeave),
		TimestampMs: nowMillis(),
		SenderID:    n.id,
	}
	n.emitSimple(nil, p)
}

// emitSimple encodes without signing for types whose registry entry
// does not require one (KEY_EXCHANGE); ANNOUNCE/LEAVE are signed when
// a session identity is present since the registry marks them optional.
func (n *Node) emitSimple(recipientID *string, p *protocol.Packet) error {
	if p.Type != protocol.TypeKeyExchange {
		wire, err := n.signAndEncode(p)
		if err != nil {
			return err
		}
		n.dedup.Admit(computeDedupID(p.SenderID, p.Payload, p.TimestampMs))
		return n.transport.Emit(recipientID, wire)
	}
	wire, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	n.dedup.Admit(computeDedupID(p.SenderID, p.Payload, p.TimestampMs))
	return n.transport.Emit(recipientID, wire)
}

func (n *Node) buildBroadcastRecord(text, channel string) *protocol.Record {
	return &protocol.Record{
		TimestampMs:    nowMillis(),
		ID:             newMessageID(n.idStr),
		SenderNickname: n.nicknameLocked(),
		Content:        []byte(text),
		Channel:        channel,
		Mentions:       extractMentions(text),
	}
}

func (n *Node) nicknameLocked() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nickname
}

// handleSend processes one facade-originated send request inside the
// loop (spec §4.6).
func (n *Node) handleSend(req *sendRequest) {
	var outcome sendOutcome

	switch {
	case req.broadcast:
		outcome = n.sendBroadcastOrChannel(req.text, "")
	case req.channel != "":
		outcome = n.sendBroadcastOrChannel(req.text, req.channel)
	case req.queue:
		outcome = n.queueForDelivery(req.recipientID, req.text, req.favorite)
	default:
		outcome = n.sendPrivate(req.recipientID, req.text)
	}

	if req.result != nil {
		req.result <- outcome
	}
}

func (n *Node) sendBroadcastOrChannel(text, channel string) sendOutcome {
	record := n.buildBroadcastRecord(text, channel)
	recordBytes, err := protocol.EncodeRecord(record)
	if err != nil {
		return sendOutcome{false, err}
	}

	p := &protocol.Packet{
		Type:        protocol.TypeMessage,
		TTL:         protocol.DefaultTTL(protocol.TypeMessage),
		TimestampMs: record.TimestampMs,
		SenderID:    n.id,
		Payload:     recordBytes,
	}

	if len(recordBytes) > n.cfg.MTU {
		if err := n.sendFragmented(nil, record.ID, p); err != nil {
			return sendOutcome{false, err}
		}
		return sendOutcome{true, nil}
	}

	if err := n.emitAndDedup(nil, p); err != nil {
		return sendOutcome{false, ErrNetworkError}
	}
	return sendOutcome{true, nil}
}

// sendPrivate implements spec §4.6/§4.8: a private send with no
// established session key cannot be encrypted, so nothing is queued --
// it fails immediately with an error. A key exchange is kicked off so a
// later retry by the caller has a chance of succeeding.
func (n *Node) sendPrivate(peerID, text string) sendOutcome {
	if len(peerID) == 0 || len(peerID) > 8 {
		return sendOutcome{false, ErrInvalidPeer}
	}

	if !n.keys.HasSession(peerID) {
		n.sendKeyExchange(peerID)
		return sendOutcome{false, ErrEncryptionFailed}
	}

	return n.sendPrivateEstablished(peerID, text)
}

// queueForDelivery places content directly into the store-and-forward
// buffer for peerID (spec §4.8 "generated by higher layers for later
// delivery"), independent of SendPrivate's session-key requirement. It
// is drained automatically the next time peerID announces.
func (n *Node) queueForDelivery(peerID, text string, favorite bool) sendOutcome {
	if len(peerID) == 0 || len(peerID) > 8 {
		return sendOutcome{false, ErrInvalidPeer}
	}
	msg := forward.StoredMessage{
		ID:          newMessageID(n.idStr),
		SenderID:    n.idStr,
		RecipientID: peerID,
		Content:     []byte(text),
		TimestampMs: nowMillis(),
		IsPrivate:   true,
	}
	n.fwd.Enqueue(peerID, msg, favorite)
	return sendOutcome{true, nil}
}

func (n *Node) sendPrivateEstablished(peerID, text string) sendOutcome {
	record := &protocol.Record{
		IsPrivate:      true,
		TimestampMs:    nowMillis(),
		ID:             newMessageID(n.idStr),
		SenderNickname: n.nicknameLocked(),
		Content:        []byte(text),
		SenderPeerID:   n.idStr,
	}
	recordBytes, err := protocol.EncodeRecord(record)
	if err != nil {
		return sendOutcome{false, err}
	}

	target := protocol.OptimalBlockSize(len(recordBytes))
	padded := protocol.Pad(recordBytes, target)
	if len(padded) == len(recordBytes) {
		// The block-size pad count does not fit in one byte, so Pad left
		// the record as is. The receiver always unpads, so append a
		// single count byte that Unpad strips exactly.
		padded = protocol.Pad(recordBytes, len(recordBytes)+1)
	}

	ciphertext, err := n.keys.Encrypt(peerID, padded)
	if err != nil {
		return sendOutcome{false, ErrEncryptionFailed}
	}

	p := &protocol.Packet{
		Type:         protocol.TypeMessage,
		TTL:          protocol.DefaultTTL(protocol.TypeMessage),
		TimestampMs:  record.TimestampMs,
		SenderID:     n.id,
		HasRecipient: true,
		RecipientID:  idToBytes(peerID),
		Payload:      ciphertext,
	}

	if len(ciphertext) > n.cfg.MTU {
		recipient := peerID
		if err := n.sendFragmented(&recipient, record.ID, p); err != nil {
			return sendOutcome{false, ErrMessageTooLarge}
		}
		return sendOutcome{true, nil}
	}

	recipient := peerID
	if err := n.emitAndDedup(&recipient, p); err != nil {
		return sendOutcome{false, ErrNetworkError}
	}
	return sendOutcome{true, nil}
}

