/*
File Name:  record.go

Inner message record codec (spec §3, inside the payload of a MESSAGE
packet). Bit-packed, length-prefixed fields, walked with bounds checks
against the remaining buffer at every step (mirrors the teacher's
Message Encoding.go field-walking discipline).
*/

package protocol

import (
	"encoding/binary"
	"errors"
)

const (
	recordFlagIsRelay              byte = 1 << 0
	recordFlagIsPrivate            byte = 1 << 1
	recordFlagHasOriginalSender    byte = 1 << 2
	recordFlagHasRecipientNickname byte = 1 << 3
	recordFlagHasSenderPeerID      byte = 1 << 4
	recordFlagHasMentions          byte = 1 << 5
	recordFlagHasChannel           byte = 1 << 6
	recordFlagIsEncrypted          byte = 1 << 7
)

// ErrBadRecord is returned by DecodeRecord on any malformed/truncated
// record. The caller must drop the enclosing packet (spec §4.4).
var ErrBadRecord = errors.New("protocol: malformed message record")

// Record is the decoded inner message record.
type Record struct {
	IsRelay             bool
	IsPrivate           bool
	IsEncrypted         bool
	TimestampMs         uint64
	ID                  string
	SenderNickname      string
	Content             []byte // UTF-8 text, or ciphertext when IsEncrypted
	OriginalSender      string // optional
	RecipientNickname   string // optional
	SenderPeerID        string // optional
	Mentions            []string
	Channel             string // optional
}

// EncodeRecord serializes r per the field order in spec §3.
func EncodeRecord(r *Record) ([]byte, error) {
	var flags byte
	if r.IsRelay {
		flags |= recordFlagIsRelay
	}
	if r.IsPrivate {
		flags |= recordFlagIsPrivate
	}
	if r.IsEncrypted {
		flags |= recordFlagIsEncrypted
	}
	if r.OriginalSender != "" {
		flags |= recordFlagHasOriginalSender
	}
	if r.RecipientNickname != "" {
		flags |= recordFlagHasRecipientNickname
	}
	if r.SenderPeerID != "" {
		flags |= recordFlagHasSenderPeerID
	}
	if len(r.Mentions) > 0 {
		flags |= recordFlagHasMentions
	}
	if r.Channel != "" {
		flags |= recordFlagHasChannel
	}

	buf := make([]byte, 0, 64+len(r.Content))
	buf = append(buf, flags)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], r.TimestampMs)
	buf = append(buf, tsBuf[:]...)

	var err error
	if buf, err = appendU8String(buf, r.ID); err != nil {
		return nil, err
	}
	if buf, err = appendU8String(buf, r.SenderNickname); err != nil {
		return nil, err
	}
	if buf, err = appendU16Bytes(buf, r.Content); err != nil {
		return nil, err
	}

	if flags&recordFlagHasOriginalSender != 0 {
		if buf, err = appendU8String(buf, r.OriginalSender); err != nil {
			return nil, err
		}
	}
	if flags&recordFlagHasRecipientNickname != 0 {
		if buf, err = appendU8String(buf, r.RecipientNickname); err != nil {
			return nil, err
		}
	}
	if flags&recordFlagHasSenderPeerID != 0 {
		if buf, err = appendU8String(buf, r.SenderPeerID); err != nil {
			return nil, err
		}
	}

	if flags&recordFlagHasMentions != 0 {
		if len(r.Mentions) > 255 {
			return nil, ErrFieldTooLarge
		}
		buf = append(buf, byte(len(r.Mentions)))
		for _, mention := range r.Mentions {
			if buf, err = appendU8String(buf, mention); err != nil {
				return nil, err
			}
		}
	}

	if flags&recordFlagHasChannel != 0 {
		if buf, err = appendU8String(buf, r.Channel); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// DecodeRecord parses a record, validating each length against the
// remaining bytes before advancing.
func DecodeRecord(data []byte) (*Record, error) {
	r := &Record{}
	off := 0

	flags, ok := readByte(data, &off)
	if !ok {
		return nil, ErrBadRecord
	}
	r.IsRelay = flags&recordFlagIsRelay != 0
	r.IsPrivate = flags&recordFlagIsPrivate != 0
	r.IsEncrypted = flags&recordFlagIsEncrypted != 0

	ts, ok := readUint64(data, &off)
	if !ok {
		return nil, ErrBadRecord
	}
	r.TimestampMs = ts

	var err error
	if r.ID, err = readU8String(data, &off); err != nil {
		return nil, err
	}
	if r.SenderNickname, err = readU8String(data, &off); err != nil {
		return nil, err
	}
	if r.Content, err = readU16Bytes(data, &off); err != nil {
		return nil, err
	}

	if flags&recordFlagHasOriginalSender != 0 {
		if r.OriginalSender, err = readU8String(data, &off); err != nil {
			return nil, err
		}
	}
	if flags&recordFlagHasRecipientNickname != 0 {
		if r.RecipientNickname, err = readU8String(data, &off); err != nil {
			return nil, err
		}
	}
	if flags&recordFlagHasSenderPeerID != 0 {
		if r.SenderPeerID, err = readU8String(data, &off); err != nil {
			return nil, err
		}
	}

	if flags&recordFlagHasMentions != 0 {
		count, ok := readByte(data, &off)
		if !ok {
			return nil, ErrBadRecord
		}
		r.Mentions = make([]string, 0, count)
		for i := 0; i < int(count); i++ {
			m, err := readU8String(data, &off)
			if err != nil {
				return nil, err
			}
			r.Mentions = append(r.Mentions, m)
		}
	}

	if flags&recordFlagHasChannel != 0 {
		if r.Channel, err = readU8String(data, &off); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func readByte(data []byte, off *int) (byte, bool) {
	if *off+1 > len(data) {
		return 0, false
	}
	b := data[*off]
	*off++
	return b, true
}

func readUint64(data []byte, off *int) (uint64, bool) {
	if *off+8 > len(data) {
		return 0, false
	}
	v := binary.BigEndian.Uint64(data[*off : *off+8])
	*off += 8
	return v, true
}

func readU8String(data []byte, off *int) (string, error) {
	if *off+1 > len(data) {
		return "", ErrBadRecord
	}
	n := int(data[*off])
	*off++
	if *off+n > len(data) {
		return "", ErrBadRecord
	}
	s := string(data[*off : *off+n])
	*off += n
	return s, nil
}

func readU16Bytes(data []byte, off *int) ([]byte, error) {
	if *off+2 > len(data) {
		return nil, ErrBadRecord
	}
	n := int(binary.BigEndian.Uint16(data[*off : *off+2]))
	*off += 2
	if *off+n > len(data) {
		return nil, ErrBadRecord
	}
	b := append([]byte(nil), data[*off:*off+n]...)
	*off += n
	return b, nil
}

func appendU8String(buf []byte, s string) ([]byte, error) {
	if len(s) > 0xFF {
		return nil, ErrFieldTooLarge
	}
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	return buf, nil
}

func appendU16Bytes(buf []byte, b []byte) ([]byte, error) {
	if len(b) > 0xFFFF {
		return nil, ErrFieldTooLarge
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, b...)
	return buf, nil
}
