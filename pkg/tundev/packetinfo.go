package tundev

import (
	"encoding/binary"
	"fmt"
)

// PacketInfoSize is the length of the prefix the kernel prepends to every
// packet unless the device was opened with NoPacketInfo.
const PacketInfoSize = 4

// PacketInfo is the decoded packet prefix (struct tun_pi): two flag bytes in
// host order followed by a big-endian protocol identifier (an ethertype, e.g.
// 0x0800 for IPv4).
type PacketInfo struct {
	Flags    uint16
	Protocol uint16
}

// ParsePacketInfo splits pkt into its prefix and the raw payload.
func ParsePacketInfo(pkt []byte) (PacketInfo, []byte, error) {
	if len(pkt) < PacketInfoSize {
		return PacketInfo{}, nil, fmt.Errorf("packet too short for packet info: %d bytes", len(pkt))
	}
	pi := PacketInfo{
		Flags:    binary.NativeEndian.Uint16(pkt[0:2]),
		Protocol: binary.BigEndian.Uint16(pkt[2:4]),
	}
	return pi, pkt[PacketInfoSize:], nil
}

// AppendPacketInfo appends the encoded prefix and payload to dst, for writing
// to a device opened without NoPacketInfo.
func AppendPacketInfo(dst []byte, pi PacketInfo, payload []byte) []byte {
	var hdr [PacketInfoSize]byte
	binary.NativeEndian.PutUint16(hdr[0:2], pi.Flags)
	binary.BigEndian.PutUint16(hdr[2:4], pi.Protocol)
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}
