package bridge

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: ProtocolVersion, Type: FrameData, Flags: 0x02, Counter: 77}
	buf := AppendHeader(nil, h)
	buf = append(buf, 0xAA, 0xBB)

	got, body, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != h {
		t.Fatalf("header mismatch: %+v", got)
	}
	if !bytes.Equal(body, []byte{0xAA, 0xBB}) {
		t.Fatalf("body mismatch: %x", body)
	}
}

func TestParseHeaderRejects(t *testing.T) {
	if _, _, err := ParseHeader([]byte("short")); err != ErrInvalidFrame {
		t.Fatalf("short frame: got %v", err)
	}
	buf := AppendHeader(nil, Header{Version: ProtocolVersion})
	buf[0] = 'X'
	if _, _, err := ParseHeader(buf); err != ErrBadMagic {
		t.Fatalf("bad magic: got %v", err)
	}
	buf = AppendHeader(nil, Header{Version: ProtocolVersion})
	buf[3] = ProtocolVersion + 1
	if _, _, err := ParseHeader(buf); err != ErrBadVersion {
		t.Fatalf("bad version: got %v", err)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	nonce, err := NewHandshakeNonce()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteHello(&buf, nonce); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	got, err := ReadHello(&buf)
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if !bytes.Equal(got, nonce) {
		t.Fatalf("nonce mismatch: %x", got)
	}
}

func TestReadHelloRejectsBadMagic(t *testing.T) {
	raw := append([]byte("XXX\x01"), make([]byte, HandshakeNonceSize)...)
	if _, err := ReadHello(bytes.NewReader(raw)); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}
