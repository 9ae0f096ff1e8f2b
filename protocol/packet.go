/*
File Name:  packet.go

Binary packet codec. Wire layout (spec §3):

  0      1   version
  1      1   type
  2      1   ttl
  3      8   timestamp_ms (big-endian)
  11     1   flags
  12     2   payload_len (big-endian)
  14     8   sender_id
  [22    8   recipient_id, if flags.has_recipient]
  ?      ?   payload (payload_len bytes)
  [?     64  signature, if flags.has_signature]

The decoder computes the exact required length from the flags before
it slices anything, so it can never read out of bounds on hostile
input (mirrors the teacher's PacketDecrypt discipline of deriving
sizePayload before indexing).
*/

package protocol

import (
	"encoding/binary"
	"errors"
)

const (
	flagHasRecipient byte = 1 << 0
	flagHasSignature byte = 1 << 1
	flagIsCompressed byte = 1 << 2
	flagReservedMask byte = 0xF8 // bits 3-7 must be zero
)

const (
	SignatureSize = 64

	headerFixedSize = 1 + 1 + 1 + 8 + 1 + 2 + PeerIDSize // through sender_id
	// Minimum possible wire size: fixed header with no recipient, no
	// payload, no signature.
	MinPacketSize = headerFixedSize

	// MaxDecompressedPayload caps the decoder's compression-bomb
	// exposure (spec §4.1).
	MaxDecompressedPayload = 256 * 1024
)

var (
	ErrTruncated      = errors.New("protocol: packet truncated")
	ErrBadVersion     = errors.New("protocol: unsupported packet version")
	ErrBadLength      = errors.New("protocol: inconsistent length field")
	ErrReservedFlag   = errors.New("protocol: reserved flag bit set")
	ErrDecompress     = errors.New("protocol: decompression failed")
	ErrFieldTooLarge  = errors.New("protocol: field exceeds its length prefix")
	ErrBadSignature   = errors.New("protocol: signature field has wrong size")
	ErrBadRecipient   = errors.New("protocol: recipient field has wrong size")
)

// Packet is the decoded form of a wire packet.
type Packet struct {
	Version     uint8
	Type        uint8
	TTL         uint8
	TimestampMs uint64
	SenderID    [PeerIDSize]byte
	HasRecipient bool
	RecipientID [PeerIDSize]byte
	IsCompressed bool
	Payload      []byte // decompressed application payload; never includes the 2-byte original-length prefix
	HasSignature bool
	Signature    [SignatureSize]byte
}

// wirePayload applies the compression policy to p.Payload and returns
// the exact bytes that will occupy the packet's payload section on the
// wire, plus whether the compressed-flag should be set. SignedBytes
// signs these bytes as they appear on the wire (spec §3), together
// with the type, compressed flag, sender and recipient; TTL and the
// timestamp are left out.
func wirePayload(payload []byte) (wire []byte, compressed bool, err error) {
	wire = payload
	if ShouldCompress(payload) {
		if c, ok := TryCompress(payload); ok {
			wire = c
			compressed = true
		}
	}
	if len(wire) > 0xFFFF {
		return nil, false, ErrFieldTooLarge
	}
	return wire, compressed, nil
}

// Encode serializes a packet to its wire form. Compression is applied
// per the policy in compress.go; the caller signs via SignedBytes
// before setting p.Signature/p.HasSignature and calling Encode a final
// time (see node/pipeline.go), relying on TryCompress being
// deterministic so both calls agree on the wire payload.
func Encode(p *Packet) ([]byte, error) {
	payload, compressed, err := wirePayload(p.Payload)
	if err != nil {
		return nil, err
	}

	size := headerFixedSize
	if p.HasRecipient {
		size += PeerIDSize
	}
	size += len(payload)
	if p.HasSignature {
		size += SignatureSize
	}

	buf := make([]byte, size)
	offset := 0

	buf[offset] = ProtocolVersion
	offset++
	buf[offset] = p.Type
	offset++
	buf[offset] = p.TTL
	offset++
	binary.BigEndian.PutUint64(buf[offset:offset+8], p.TimestampMs)
	offset += 8

	var flags byte
	if p.HasRecipient {
		flags |= flagHasRecipient
	}
	if p.HasSignature {
		flags |= flagHasSignature
	}
	if compressed {
		flags |= flagIsCompressed
	}
	buf[offset] = flags
	offset++

	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(payload)))
	offset += 2

	copy(buf[offset:offset+PeerIDSize], p.SenderID[:])
	offset += PeerIDSize

	if p.HasRecipient {
		copy(buf[offset:offset+PeerIDSize], p.RecipientID[:])
		offset += PeerIDSize
	}

	copy(buf[offset:offset+len(payload)], payload)
	offset += len(payload)

	if p.HasSignature {
		copy(buf[offset:offset+SignatureSize], p.Signature[:])
		offset += SignatureSize
	}

	return buf, nil
}

// Decode parses a wire packet. It validates every length field
// against the remaining buffer before slicing, and never decompresses
// past MaxDecompressedPayload.
func Decode(raw []byte) (*Packet, error) {
	if len(raw) < MinPacketSize {
		return nil, ErrTruncated
	}

	offset := 0
	p := &Packet{}

	p.Version = raw[offset]
	offset++
	if p.Version != ProtocolVersion {
		return nil, ErrBadVersion
	}

	p.Type = raw[offset]
	offset++
	p.TTL = raw[offset]
	offset++

	p.TimestampMs = binary.BigEndian.Uint64(raw[offset : offset+8])
	offset += 8

	flags := raw[offset]
	offset++
	if flags&flagReservedMask != 0 {
		return nil, ErrReservedFlag
	}
	p.HasRecipient = flags&flagHasRecipient != 0
	p.HasSignature = flags&flagHasSignature != 0
	p.IsCompressed = flags&flagIsCompressed != 0

	if len(raw) < offset+2 {
		return nil, ErrTruncated
	}
	payloadLen := int(binary.BigEndian.Uint16(raw[offset : offset+2]))
	offset += 2

	required := offset + PeerIDSize
	if p.HasRecipient {
		required += PeerIDSize
	}
	required += payloadLen
	if p.HasSignature {
		required += SignatureSize
	}
	if len(raw) < required {
		return nil, ErrTruncated
	}
	if len(raw) != required {
		return nil, ErrBadLength
	}

	copy(p.SenderID[:], raw[offset:offset+PeerIDSize])
	offset += PeerIDSize

	if p.HasRecipient {
		copy(p.RecipientID[:], raw[offset:offset+PeerIDSize])
		offset += PeerIDSize
	}

	payloadWire := raw[offset : offset+payloadLen]
	offset += payloadLen

	if p.IsCompressed {
		decompressed, err := Decompress(payloadWire)
		if err != nil {
			return nil, err
		}
		p.Payload = decompressed
	} else {
		p.Payload = append([]byte(nil), payloadWire...)
	}

	if p.HasSignature {
		copy(p.Signature[:], raw[offset:offset+SignatureSize])
		offset += SignatureSize
	}

	return p, nil
}

// SignedBytes returns the exact bytes a signature must cover: the
// packet's wire payload section (spec §3 "signature ... signs the
// payload bytes exactly as they appear on the wire"), with just enough
// additional context -- type, compressed flag, sender, recipient -- to bind the
// signature to this specific message rather than any payload with the
// same bytes. TTL is deliberately excluded: it is decremented at every
// relay hop, and a signature scope that covered it would invalidate
// itself at the first hop.
func SignedBytes(p *Packet) ([]byte, error) {
	wire, compressed, err := wirePayload(p.Payload)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 2+PeerIDSize*2+2+len(wire))
	buf = append(buf, p.Type)
	if compressed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, p.SenderID[:]...)
	if p.HasRecipient {
		buf = append(buf, p.RecipientID[:]...)
	}
	buf = append(buf, wire...)
	return buf, nil
}
