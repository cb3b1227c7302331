// Package tundev creates and manages Linux tun/tap interfaces, exposing each
// one as a readable/writable packet stream.
package tundev

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Mode selects the framing level of the interface.
type Mode int

const (
	// TUN devices carry IP packets (IFF_TUN).
	TUN Mode = 0x0001
	// TAP devices carry Ethernet frames (IFF_TAP).
	TAP Mode = 0x0002
)

func (m Mode) String() string {
	switch m {
	case TUN:
		return "tun"
	case TAP:
		return "tap"
	default:
		return fmt.Sprintf("mode(%#04x)", int(m))
	}
}

// flagNoPacketInfo is IFF_NO_PI.
const flagNoPacketInfo = 0x1000

const (
	// DefaultDevicePath is the clone device used to create interfaces.
	DefaultDevicePath = "/dev/net/tun"

	// DefaultReceiveSize is the Receive buffer size when the caller passes
	// zero, matching a typical MTU.
	DefaultReceiveSize = 1500
)

// Config describes the interface to create.
type Config struct {
	// Mode is TUN or TAP. Required.
	Mode Mode

	// Name is the requested name pattern, e.g. "tun%d" or "vpn0". Empty
	// lets the kernel pick the next free index for the mode.
	Name string

	// NoPacketInfo opens the device with IFF_NO_PI, suppressing the 4-byte
	// flags/protocol prefix on every packet.
	NoPacketInfo bool

	// DevicePath overrides the clone device path. Defaults to /dev/net/tun.
	DevicePath string

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Device is one kernel tun/tap interface bound to this process. A Device is
// created closed, opened at most once, and is not reusable after Close; create
// a fresh Device instead. Send and Receive may run on separate goroutines, and
// Close may be called concurrently with a blocked Read to unblock it; the
// pending Read then returns os.ErrClosed. Open must complete before any I/O
// starts.
type Device struct {
	cfg  Config
	log  *slog.Logger
	file atomic.Pointer[os.File]
	name string
}

// New validates cfg and returns a closed Device.
func New(cfg Config) (*Device, error) {
	if cfg.Mode != TUN && cfg.Mode != TAP {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, cfg.Mode)
	}
	if cfg.DevicePath == "" {
		cfg.DevicePath = DefaultDevicePath
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Device{cfg: cfg, log: log}, nil
}

// Open validates cfg, creates the interface and returns the open Device.
func Open(cfg Config) (*Device, error) {
	d, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := d.Open(); err != nil {
		return nil, err
	}
	return d, nil
}

// Open creates the interface. It fails with ErrAlreadyOpen if the Device is
// open or has been opened before. On success the interface is visible to the
// host network stack, administratively down.
func (d *Device) Open() error {
	if d.file.Load() != nil || d.name != "" {
		return ErrAlreadyOpen
	}
	d.log.Debug("opening clone device", "path", d.cfg.DevicePath)
	file, err := os.OpenFile(d.cfg.DevicePath, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: open %s: %w", ErrPermissionDenied, d.cfg.DevicePath, err)
		}
		return fmt.Errorf("%w: open %s: %w", ErrDeviceUnavailable, d.cfg.DevicePath, err)
	}
	name, err := createInterface(file, d.cfg.Name, d.flags())
	if err != nil {
		file.Close()
		return err
	}
	d.file.Store(file)
	d.name = name
	d.log.Info("tunnel opened", "name", name, "mode", d.cfg.Mode.String())
	return nil
}

// Close releases the interface. It is idempotent and safe to defer even when
// Open never succeeded. Closing while a Read is blocked unblocks it.
func (d *Device) Close() error {
	file := d.file.Swap(nil)
	if file == nil {
		return nil
	}
	err := file.Close()
	d.log.Info("tunnel closed", "name", d.name)
	return err
}

// Read reads one packet into p. Unless the device was opened with
// NoPacketInfo, the packet starts with the 4-byte flags/protocol prefix.
func (d *Device) Read(p []byte) (int, error) {
	file := d.file.Load()
	if file == nil {
		return 0, ErrNotOpen
	}
	return file.Read(p)
}

// Write injects one packet. The framing mirrors Read.
func (d *Device) Write(p []byte) (int, error) {
	file := d.file.Load()
	if file == nil {
		return 0, ErrNotOpen
	}
	return file.Write(p)
}

// Send writes buf to the interface and returns the number of bytes written.
// A short write leaves the remainder to the caller.
func (d *Device) Send(buf []byte) (int, error) {
	n, err := d.Write(buf)
	if err != nil {
		if errors.Is(err, ErrNotOpen) {
			return n, err
		}
		return n, fmt.Errorf("%w: write %s: %w", ErrIO, d.name, err)
	}
	return n, nil
}

// Receive blocks until one packet arrives and returns it. max bounds the
// packet size; zero or negative means DefaultReceiveSize. A zero-length read
// or EOF reports ErrDeviceClosed.
func (d *Device) Receive(max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultReceiveSize
	}
	buf := make([]byte, max)
	n, err := d.Read(buf)
	if err != nil {
		if errors.Is(err, ErrNotOpen) {
			return nil, err
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read %s", ErrDeviceClosed, d.name)
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, d.name, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: read %s", ErrDeviceClosed, d.name)
	}
	return buf[:n], nil
}

// Name returns the kernel-confirmed interface name, e.g. "tun0". Empty until
// Open succeeds; stable afterwards, including after Close.
func (d *Device) Name() string { return d.name }

// DevicePath returns the clone device path the Device opens.
func (d *Device) DevicePath() string { return d.cfg.DevicePath }

// Mode returns the configured framing mode.
func (d *Device) Mode() Mode { return d.cfg.Mode }

// NoPacketInfo reports whether the packet prefix is suppressed.
func (d *Device) NoPacketInfo() bool { return d.cfg.NoPacketInfo }

func (d *Device) flags() uint16 {
	f := uint16(d.cfg.Mode)
	if d.cfg.NoPacketInfo {
		f |= flagNoPacketInfo
	}
	return f
}
