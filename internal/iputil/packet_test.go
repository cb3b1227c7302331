package iputil

import "testing"

func TestPacketAddressesV4(t *testing.T) {
	pkt := make([]byte, 20)
	pkt[0] = 0x45
	copy(pkt[12:16], []byte{10, 9, 0, 1})
	copy(pkt[16:20], []byte{10, 9, 0, 2})

	src, err := PacketSource(pkt)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if src.String() != "10.9.0.1" {
		t.Fatalf("source = %s", src)
	}
	dst, err := PacketDest(pkt)
	if err != nil {
		t.Fatalf("dest: %v", err)
	}
	if dst.String() != "10.9.0.2" {
		t.Fatalf("dest = %s", dst)
	}
}

func TestPacketAddressesRejectGarbage(t *testing.T) {
	if _, err := PacketSource(nil); err != ErrPacketTooShort {
		t.Fatalf("empty packet: got %v", err)
	}
	if _, err := PacketSource([]byte{0x45, 0x00}); err != ErrPacketTooShort {
		t.Fatalf("truncated v4: got %v", err)
	}
	if _, err := PacketDest([]byte{0x95}); err != ErrUnknownIP {
		t.Fatalf("bogus version: got %v", err)
	}
}
