package tundev

import (
	"bytes"
	"testing"
)

func TestPacketInfoRoundTrip(t *testing.T) {
	payload := []byte{0x45, 0x00, 0x01, 0x02}
	framed := AppendPacketInfo(nil, PacketInfo{Flags: 0x0001, Protocol: 0x86dd}, payload)
	if len(framed) != PacketInfoSize+len(payload) {
		t.Fatalf("framed length = %d", len(framed))
	}
	pi, rest, err := ParsePacketInfo(framed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pi.Flags != 0x0001 || pi.Protocol != 0x86dd {
		t.Fatalf("prefix mismatch: %+v", pi)
	}
	if !bytes.Equal(rest, payload) {
		t.Fatalf("payload mismatch: %x", rest)
	}
}

func TestParsePacketInfoTooShort(t *testing.T) {
	if _, _, err := ParsePacketInfo([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short packet")
	}
}
