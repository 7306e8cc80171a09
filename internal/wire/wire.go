// Package wire frames entries held by the in-process backend.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindEntry byte = 1

	headerLen = 4 + 1 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("mcdb: corrupt entry")
	magic4     = [...]byte{'M', 'C', 'D', 'B'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry is one stored value. ExpiresAt is unix nanoseconds; 0 never expires.
type Entry struct {
	Version   uint64
	ExpiresAt int64
	Payload   []byte
}

// Expired reports whether e is past its deadline at now (unix nanoseconds).
func (e Entry) Expired(now int64) bool {
	return e.ExpiresAt != 0 && now >= e.ExpiresAt
}

// Encode: magic(4) | ver(1) | kind(1) | version(u64 be) | expires(i64 be) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Version)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(e.ExpiresAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode parses b. The returned payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}

	off := 6
	ver := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	exp := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{Version: ver, ExpiresAt: exp, Payload: b[off : off+vlen]}, nil
}
