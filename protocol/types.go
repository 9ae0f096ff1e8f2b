/*
File Name:  types.go

Packet type registry. See spec §6.1.
*/

package protocol

// Packet type values. DefaultTTL below gives each type's initial TTL;
// signature requirements are not encoded in this package.
const (
	TypeAnnounce               uint8 = 1
	TypeKeyExchange            uint8 = 2
	TypeLeave                  uint8 = 3
	TypeMessage                uint8 = 4
	TypeFragmentStart          uint8 = 5
	TypeFragmentContinue       uint8 = 6
	TypeFragmentEnd            uint8 = 7
	TypeChannelAnnounce        uint8 = 8
	TypeChannelRetention       uint8 = 9
	TypeDeliveryAck            uint8 = 10
	TypeDeliveryStatusRequest  uint8 = 11
	TypeReadReceipt            uint8 = 12
)

// DefaultTTL returns the initial TTL a freshly originated packet of
// the given type should carry.
func DefaultTTL(typ uint8) uint8 {
	switch typ {
	case TypeMessage, TypeFragmentStart, TypeFragmentContinue, TypeFragmentEnd:
		return 7
	default:
		return 3
	}
}

// IsFragment reports whether typ is one of the fragment carrier types.
func IsFragment(typ uint8) bool {
	return typ == TypeFragmentStart || typ == TypeFragmentContinue || typ == TypeFragmentEnd
}

const ProtocolVersion uint8 = 1

// PeerIDSize is the fixed wire width of a peer id.
const PeerIDSize = 8

// BroadcastPeerID is the legacy all-0xFF sentinel. Decoders must still
// recognize it as broadcast for interop with peers that emit it, but
// this implementation's encoder never emits it: absent recipient is
// the canonical wire form (see spec Design Notes, "Recipient convention").
var BroadcastPeerID = [PeerIDSize]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
