package bridge

import (
	"context"
	"fmt"
	"io"

	"github.com/dwhall/tundev/internal/bufferpool"
)

// DatagramConn is the transport leg the link runs over, satisfied by
// quic-go connections with datagram support.
type DatagramConn interface {
	SendDatagram([]byte) error
	ReceiveDatagram(context.Context) ([]byte, error)
}

// Link seals outbound packets and opens inbound frames for one established
// bridge. EncodePacket and DecodeFrame are safe to use from one goroutine
// per direction.
type Link struct {
	MTU  int
	send *CipherState
	recv *CipherState

	// OnDrop, when set, is told about packets the pumps discard and why.
	OnDrop func(reason string)
}

func NewLink(mtu int, send, recv *CipherState) *Link {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Link{MTU: mtu, send: send, recv: recv}
}

// EncodePacket seals one tunnel packet into a frame.
func (l *Link) EncodePacket(payload []byte) ([]byte, error) {
	if len(payload) > l.MTU {
		return nil, fmt.Errorf("packet exceeds MTU: %d > %d", len(payload), l.MTU)
	}
	return l.encode(FrameData, payload)
}

func (l *Link) encode(t FrameType, payload []byte) ([]byte, error) {
	counter := l.send.NextCounter()
	hdr := AppendHeader(make([]byte, 0, HeaderLen+len(payload)+l.send.Overhead()), Header{
		Version: ProtocolVersion,
		Type:    t,
		Counter: counter,
	})
	return l.send.Seal(hdr, counter, hdr[:HeaderLen], payload), nil
}

// DecodeFrame authenticates one inbound frame and returns its header and
// payload.
func (l *Link) DecodeFrame(raw []byte) (Header, []byte, error) {
	h, body, err := ParseHeader(raw)
	if err != nil {
		return Header{}, nil, err
	}
	payload, err := l.recv.Open(nil, h.Counter, raw[:HeaderLen], body)
	if err != nil {
		return Header{}, nil, fmt.Errorf("open frame: %w", err)
	}
	return h, payload, nil
}

// PumpDeviceToConn reads packets from the tunnel device and sends them as
// sealed datagrams until ctx is cancelled or the device or connection fails.
// Oversized packets are dropped, not fragmented.
func (l *Link) PumpDeviceToConn(ctx context.Context, dev io.Reader, conn DatagramConn, pool *bufferpool.Pool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		buf := pool.Get()
		n, err := dev.Read(buf)
		if err != nil {
			pool.Put(buf)
			return fmt.Errorf("read device: %w", err)
		}
		if n > l.MTU {
			l.drop("oversized")
			pool.Put(buf)
			continue
		}
		frame, err := l.encode(FrameData, buf[:n])
		pool.Put(buf)
		if err != nil {
			return err
		}
		if err := conn.SendDatagram(frame); err != nil {
			return fmt.Errorf("send datagram: %w", err)
		}
	}
}

// PumpConnToDevice receives datagrams, answers pings, and writes data
// payloads to the tunnel device. A Close frame from the peer ends the pump
// cleanly. Frames that fail to authenticate are dropped.
func (l *Link) PumpConnToDevice(ctx context.Context, dev io.Writer, conn DatagramConn) error {
	for {
		raw, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			return fmt.Errorf("receive datagram: %w", err)
		}
		h, payload, err := l.DecodeFrame(raw)
		if err != nil {
			l.drop("decode")
			continue
		}
		switch h.Type {
		case FrameData:
			if _, err := dev.Write(payload); err != nil {
				return fmt.Errorf("write device: %w", err)
			}
		case FramePing:
			pong, err := l.encode(FramePong, nil)
			if err != nil {
				return err
			}
			if err := conn.SendDatagram(pong); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		case FramePong:
			// keepalive answer, nothing to do
		case FrameClose:
			return nil
		default:
			l.drop("unknown-type")
		}
	}
}

// SendClose tells the peer the link is going away. Best effort.
func (l *Link) SendClose(conn DatagramConn) {
	if frame, err := l.encode(FrameClose, nil); err == nil {
		_ = conn.SendDatagram(frame)
	}
}

func (l *Link) drop(reason string) {
	if l.OnDrop != nil {
		l.OnDrop(reason)
	}
}
