package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustDecode(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return e
}

func TestRoundTrip(t *testing.T) {
	cases := []Entry{
		{},
		{Version: 42, Payload: []byte("hello")},
		{Version: math.MaxUint64, ExpiresAt: math.MaxInt64, Payload: []byte{0, 1, 2, 3, 4}},
		{Version: 1, ExpiresAt: 1700000000000000000, Payload: bytes.Repeat([]byte("x"), 4096)},
	}
	for _, tc := range cases {
		got := mustDecode(t, Encode(tc))
		if got.Version != tc.Version || got.ExpiresAt != tc.ExpiresAt {
			t.Fatalf("header mismatch: got %+v want %+v", got, tc)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode(Entry{Version: 7, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(Entry{Version: 1, Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt on bad magic, got %v", err)
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt on bad version, got %v", err)
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEntry + 1
	if _, err := Decode(badKind); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt on bad kind, got %v", err)
	}

	long := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(long[headerLen-4:headerLen], 1000)
	if _, err := Decode(long); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt on oversized vlen, got %v", err)
	}

	if _, err := Decode(enc[:headerLen-1]); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt on short header, got %v", err)
	}
}

func TestForeignBytes(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("plain value"), []byte("MCDB")} {
		if _, err := Decode(b); err == nil {
			t.Fatalf("expected error for %q", b)
		}
	}
}

func TestExpired(t *testing.T) {
	if (Entry{}).Expired(math.MaxInt64) {
		t.Fatalf("zero deadline must never expire")
	}
	e := Entry{ExpiresAt: 100}
	if e.Expired(99) {
		t.Fatalf("expired before deadline")
	}
	if !e.Expired(100) || !e.Expired(101) {
		t.Fatalf("not expired at/after deadline")
	}
}
