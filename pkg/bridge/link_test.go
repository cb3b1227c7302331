package bridge

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/dwhall/tundev/internal/bufferpool"
)

// chanConn is an in-memory DatagramConn endpoint.
type chanConn struct {
	send chan<- []byte
	recv <-chan []byte
}

func (c chanConn) SendDatagram(b []byte) error {
	cp := append([]byte(nil), b...)
	c.send <- cp
	return nil
}

func (c chanConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b := <-c.recv:
		return b, nil
	}
}

func connPair() (chanConn, chanConn) {
	a2b := make(chan []byte, 16)
	b2a := make(chan []byte, 16)
	return chanConn{send: a2b, recv: b2a}, chanConn{send: b2a, recv: a2b}
}

func linkPair(t *testing.T, mtu int) (*Link, *Link) {
	t.Helper()
	dialNonce, listenNonce := testNonces()
	km, err := DeriveKeys("secret", dialNonce, listenNonce)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	ds, dr, err := km.CipherStates(true, NewReplayWindow(128))
	if err != nil {
		t.Fatalf("dial states: %v", err)
	}
	ls, lr, err := km.CipherStates(false, NewReplayWindow(128))
	if err != nil {
		t.Fatalf("listen states: %v", err)
	}
	return NewLink(mtu, ds, dr), NewLink(mtu, ls, lr)
}

func TestLinkEncodeDecode(t *testing.T) {
	dial, listen := linkPair(t, 400)

	payload := bytes.Repeat([]byte("x"), 300)
	frame, err := dial.EncodePacket(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	h, got, err := listen.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Type != FrameData {
		t.Fatalf("type = %d, want data", h.Type)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}

	// Replayed frame must not decode twice.
	if _, _, err := listen.DecodeFrame(frame); err == nil {
		t.Fatal("replayed frame must fail")
	}
}

func TestLinkEncodeRejectsOversized(t *testing.T) {
	dial, _ := linkPair(t, 100)
	if _, err := dial.EncodePacket(make([]byte, 101)); err == nil {
		t.Fatal("oversized packet must fail to encode")
	}
}

func TestLinkPumpRoundTrip(t *testing.T) {
	dialLink, listenLink := linkPair(t, DefaultMTU)
	dialConn, listenConn := connPair()

	// The dial side's "device" feeds packets in; the listen side's
	// "device" collects what came out.
	devReader, devFeed := io.Pipe()
	devSink, devWriter := io.Pipe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := bufferpool.New(DefaultMTU)
	go func() {
		_ = dialLink.PumpDeviceToConn(ctx, devReader, dialConn, pool)
	}()
	go func() {
		_ = listenLink.PumpConnToDevice(ctx, devWriter, listenConn)
	}()

	payload := []byte{0x45, 0x00, 0x00, 0x54, 1, 2, 3, 4}
	go func() {
		devFeed.Write(payload)
	}()

	buf := make([]byte, DefaultMTU)
	n, err := devSink.Read(buf)
	if err != nil {
		t.Fatalf("read delivered packet: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("delivered packet mismatch: %x", buf[:n])
	}
}

func TestLinkAnswersPing(t *testing.T) {
	dialLink, listenLink := linkPair(t, DefaultMTU)
	dialConn, listenConn := connPair()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, devWriter := io.Pipe()
	go func() {
		_ = listenLink.PumpConnToDevice(ctx, devWriter, listenConn)
	}()

	ping, err := dialLink.encode(FramePing, nil)
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	if err := dialConn.SendDatagram(ping); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	raw, err := dialConn.ReceiveDatagram(ctx)
	if err != nil {
		t.Fatalf("receive answer: %v", err)
	}
	h, _, err := dialLink.DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if h.Type != FramePong {
		t.Fatalf("answer type = %d, want pong", h.Type)
	}
}

func TestLinkPumpStopsOnClose(t *testing.T) {
	dialLink, listenLink := linkPair(t, DefaultMTU)
	dialConn, listenConn := connPair()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, devWriter := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- listenLink.PumpConnToDevice(ctx, devWriter, listenConn)
	}()

	dialLink.SendClose(dialConn)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("pump should end cleanly on close, got %v", err)
		}
	case <-ctx.Done():
		t.Fatal("pump did not stop on close frame")
	}
}
