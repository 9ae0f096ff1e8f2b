/*
File Name:  compress.go

Payload compression codec (spec §4.1). Uses LZ4 block compression
(no frame headers -- the wire format supplies its own 2-byte original-
length prefix), matching the dependency the bitchat Go port settles on
(github.com/pierrec/lz4/v4).
*/

package protocol

import (
	"math"

	"github.com/pierrec/lz4/v4"
)

const (
	compressMinLen      = 100
	compressEntropyMin  = 4.0  // bits/byte, Shannon entropy
	compressRatioMax    = 0.80 // accept compressed form only if <= 80% of original
)

// Known magic numbers of already-compressed formats; compressing them
// again is pointless and usually counter-productive.
var compressedMagic = [][2]byte{
	{0x1F, 0x8B}, // gzip
	{0x78, 0x9C}, // zlib default
	{0x04, 0x22}, // lz4 frame (low 16 bits of the 32-bit magic)
}

// ShouldCompress applies the encoder-side heuristic from spec §4.1: a
// minimum length, a magic-byte guard against re-compressing
// already-compressed data, and a minimum byte-entropy floor.
func ShouldCompress(payload []byte) bool {
	if len(payload) < compressMinLen {
		return false
	}

	for _, magic := range compressedMagic {
		if payload[0] == magic[0] && payload[1] == magic[1] {
			return false
		}
	}

	return shannonEntropy(payload) >= compressEntropyMin
}

// TryCompress compresses payload and returns the wire-ready bytes
// (2-byte big-endian original length followed by the LZ4 block), and
// whether compression was worthwhile (<=80% of the original size).
// Callers that get ok=false must send the payload uncompressed.
func TryCompress(payload []byte) (wire []byte, ok bool) {
	buf := make([]byte, lz4.CompressBlockBound(len(payload)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(payload, buf)
	if err != nil || n == 0 || n > len(payload)*compressRatioPercent/100 {
		return nil, false
	}

	wire = make([]byte, 2+n)
	wire[0] = byte(len(payload) >> 8)
	wire[1] = byte(len(payload))
	copy(wire[2:], buf[:n])
	return wire, true
}

const compressRatioPercent = int(compressRatioMax * 100)

// Decompress reverses TryCompress. It enforces the declared original
// length exactly and the 256 KiB decompression cap (spec §4.1) before
// ever allocating the destination buffer.
func Decompress(wire []byte) ([]byte, error) {
	if len(wire) < 2 {
		return nil, ErrDecompress
	}

	originalLen := int(wire[0])<<8 | int(wire[1])
	if originalLen > MaxDecompressedPayload {
		return nil, ErrDecompress
	}

	dst := make([]byte, originalLen)
	n, err := lz4.UncompressBlock(wire[2:], dst)
	if err != nil {
		return nil, ErrDecompress
	}
	if n != originalLen {
		return nil, ErrDecompress
	}

	return dst, nil
}

// shannonEntropy computes the byte-level Shannon entropy of data, in
// bits per byte.
func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var histogram [256]int
	for _, b := range data {
		histogram[b]++
	}

	entropy := 0.0
	total := float64(len(data))
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}

	return entropy
}
