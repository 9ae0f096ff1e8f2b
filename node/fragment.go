/*
File Name:  fragment.go

Outbound fragmentation for payloads that exceed the MTU budget (spec
§6.1 fragment types 5..7, §7 MessageTooLarge "with fragmentation
beyond"). Each fragment packet's payload is a small envelope --
message id, chunk index, chunk bytes -- that relay/fragment.go's
Reassembler on the receiving end reverses; this envelope has no
equivalent in the teacher (Peernet never fragments above UDP's MTU)
and is new here, built the same length-prefixed-field way as
protocol/record.go.
*/

package node

import (
	"encoding/binary"
	"errors"

	"github.com/meshchat/core/protocol"
)

var errFragmentEnvelope = errors.New("node: malformed fragment envelope")

func encodeFragmentEnvelope(messageID string, index int, chunk []byte) []byte {
	buf := make([]byte, 0, 1+len(messageID)+2+len(chunk))
	buf = append(buf, byte(len(messageID)))
	buf = append(buf, messageID...)
	var idxBuf [2]byte
	binary.BigEndian.PutUint16(idxBuf[:], uint16(index))
	buf = append(buf, idxBuf[:]...)
	buf = append(buf, chunk...)
	return buf
}

func decodeFragmentEnvelope(data []byte) (messageID string, index int, chunk []byte, err error) {
	if len(data) < 1 {
		return "", 0, nil, errFragmentEnvelope
	}
	n := int(data[0])
	off := 1
	if off+n+2 > len(data) {
		return "", 0, nil, errFragmentEnvelope
	}
	messageID = string(data[off : off+n])
	off += n
	index = int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	chunk = data[off:]
	return messageID, index, chunk, nil
}

// sendFragmented splits p.Payload into MTU-sized chunks and emits a
// START, zero or more CONTINUE, and one END fragment packet, each
// carrying p's TTL, sender, and optional recipient.
//
// The signature carried on every fragment packet is computed once,
// over p exactly as it would have been signed had it fit in a single
// packet (spec §6.1 fragment types "Signature: follows enclosed") --
// never over a fragment's own envelope bytes. dispatch.go's
// handleFragment copies HasSignature/Signature from whichever fragment
// completes reassembly straight onto the synthetic MESSAGE packet, so
// every fragment must carry that same enclosed-message signature for
// the copy to verify correctly against the reassembled payload.
func (n *Node) sendFragmented(recipientID *string, messageID string, p *protocol.Packet) error {
	signedBytes, err := protocol.SignedBytes(p)
	if err != nil {
		return err
	}
	sig := n.identity.Sign(signedBytes)

	chunkSize := n.cfg.MTU
	if chunkSize <= 0 {
		chunkSize = 512
	}

	payload := p.Payload
	var chunks [][]byte
	for len(payload) > 0 {
		end := chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[:end])
		payload = payload[end:]
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	for i, chunk := range chunks {
		fragType := protocol.TypeFragmentContinue
		switch {
		case i == 0:
			fragType = protocol.TypeFragmentStart
		case i == len(chunks)-1:
			fragType = protocol.TypeFragmentEnd
		}

		fp := &protocol.Packet{
			Type:         fragType,
			TTL:          p.TTL,
			TimestampMs:  p.TimestampMs,
			SenderID:     p.SenderID,
			HasRecipient: p.HasRecipient,
			RecipientID:  p.RecipientID,
			HasSignature: true,
			Signature:    sig,
			Payload:      encodeFragmentEnvelope(messageID, i, chunk),
		}

		if err := n.emitFragment(recipientID, fp); err != nil {
			return err
		}
	}

	return nil
}

// emitFragment encodes and emits a fragment packet whose
// HasSignature/Signature were already set by sendFragmented to the
// enclosed message's real signature -- unlike emitAndDedup, it must
// never re-sign over the fragment's own envelope bytes.
func (n *Node) emitFragment(recipientID *string, p *protocol.Packet) error {
	wire, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	n.dedup.Admit(computeDedupID(p.SenderID, p.Payload, p.TimestampMs))
	return n.transport.Emit(recipientID, wire)
}
