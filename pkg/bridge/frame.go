// Package bridge carries raw tunnel packets between two peers over an
// encrypted datagram connection. The link is symmetric and point-to-point:
// both sides hold the same pre-shared key, swap nonces once over a stream,
// and then exchange AEAD-sealed frames.
package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	ProtocolVersion uint8 = 1
	Magic                 = "TBR"

	DefaultMTU = 1350

	// HeaderLen is magic + version + type + flags + counter.
	HeaderLen = 3 + 1 + 1 + 1 + 8
)

var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrBadMagic     = errors.New("invalid frame magic")
	ErrBadVersion   = errors.New("unsupported frame version")
)

type FrameType uint8

const (
	FrameData FrameType = iota
	FramePing
	FramePong
	FrameClose
)

// Header is the cleartext frame header; it doubles as the AEAD's
// additional data.
type Header struct {
	Version uint8
	Type    FrameType
	Flags   uint8
	Counter uint64
}

func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst, Magic...)
	dst = append(dst, h.Version, byte(h.Type), h.Flags)
	return binary.BigEndian.AppendUint64(dst, h.Counter)
}

func ParseHeader(b []byte) (Header, []byte, error) {
	if len(b) < HeaderLen {
		return Header{}, nil, ErrInvalidFrame
	}
	if string(b[:3]) != Magic {
		return Header{}, nil, ErrBadMagic
	}
	if b[3] != ProtocolVersion {
		return Header{}, nil, ErrBadVersion
	}
	h := Header{
		Version: b[3],
		Type:    FrameType(b[4]),
		Flags:   b[5],
		Counter: binary.BigEndian.Uint64(b[6:14]),
	}
	return h, b[HeaderLen:], nil
}

// helloLen is magic + version + nonce.
const helloLen = 3 + 1 + HandshakeNonceSize

// WriteHello sends the cleartext hello (magic, version, handshake nonce)
// over the negotiation stream.
func WriteHello(w io.Writer, nonce []byte) error {
	if len(nonce) != HandshakeNonceSize {
		return fmt.Errorf("hello nonce must be %d bytes", HandshakeNonceSize)
	}
	buf := make([]byte, 0, helloLen)
	buf = append(buf, Magic...)
	buf = append(buf, ProtocolVersion)
	buf = append(buf, nonce...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}
	return nil
}

// ReadHello reads the peer's hello and returns its nonce.
func ReadHello(r io.Reader) ([]byte, error) {
	buf := make([]byte, helloLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if string(buf[:3]) != Magic {
		return nil, ErrBadMagic
	}
	if buf[3] != ProtocolVersion {
		return nil, ErrBadVersion
	}
	return buf[4:], nil
}
