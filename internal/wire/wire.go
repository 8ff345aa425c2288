// Package wire frames the record persisted to the session and long-lived
// tiers. The frame carries only the minimal projection of an entry:
// expiry, category, compaction flag and the codec-encoded value. Access
// stats and dependency edges are deliberately not persisted.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

const flagCompacted byte = 1 << 0

var (
	ErrCorrupt = errors.New("tiercache: corrupt record")
	magic4     = [...]byte{'T', 'C', 'R', 'C'}
)

// Record is the persisted projection of a cache entry.
type Record struct {
	ExpiresAt int64 // epoch milliseconds
	Category  string
	Compacted bool
	Payload   []byte // codec-encoded value
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Frame: magic(4) | ver(1) | flags(1) | expiresAt(i64 be) | catLen(u16 be) | category | vlen(u32 be) | payload
func Encode(r Record) ([]byte, error) {
	if len(r.Category) > 0xFFFF {
		return nil, errors.New("tiercache: category too long")
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 2 + len(r.Category) + 4 + len(r.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var flags byte
	if r.Compacted {
		flags |= flagCompacted
	}
	buf.WriteByte(flags)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(r.ExpiresAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(r.Category)))
	buf.Write(u2[:])
	buf.WriteString(r.Category)

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)

	return buf.Bytes(), nil
}

// Decode parses a frame. Framing is strict: bad magic, unknown version,
// short buffers and trailing bytes all fail with ErrCorrupt so the caller
// can self-heal by deleting the record.
func Decode(b []byte) (Record, error) {
	const hdr = 4 + 1 + 1 + 8 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Record{}, ErrCorrupt
	}

	flags := b[5]
	off := 6

	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	clen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if clen > len(b)-off {
		return Record{}, ErrCorrupt
	}
	cat := string(b[off : off+clen])
	off += clen

	if off+4 > len(b) {
		return Record{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Record{}, ErrCorrupt
	}

	return Record{
		ExpiresAt: exp,
		Category:  cat,
		Compacted: flags&flagCompacted != 0,
		Payload:   b[off : off+vlen],
	}, nil
}
