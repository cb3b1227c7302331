//go:build linux

package tundev

import (
	"errors"
	"fmt"
	"net"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// createInterface issues TUNSETIFF on the clone device and returns the name
// the kernel confirmed. name may be empty or a pattern such as "tun%d".
func createInterface(file *os.File, name string, flags uint16) (string, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return "", fmt.Errorf("%w: interface name %q: %w", ErrDeviceSetupFailed, name, err)
	}
	ifr.SetUint16(flags)
	if err := unix.IoctlIfreq(int(file.Fd()), unix.TUNSETIFF, ifr); err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return "", fmt.Errorf("%w: TUNSETIFF: %w", ErrPermissionDenied, err)
		}
		return "", fmt.Errorf("%w: TUNSETIFF on %s: %w", ErrDeviceSetupFailed, file.Name(), err)
	}
	// The kernel writes the resolved name back into the request.
	return ifr.Name(), nil
}

// SetMACAddress sets the hardware address of a TAP interface via
// SIOCSIFHWADDR. TUN interfaces have no hardware address and report
// ErrUnsupported.
func (d *Device) SetMACAddress(mac net.HardwareAddr) error {
	file := d.file.Load()
	if file == nil {
		return ErrNotOpen
	}
	if d.cfg.Mode != TAP {
		return fmt.Errorf("%w: SIOCSIFHWADDR on %s device", ErrUnsupported, d.cfg.Mode)
	}
	if len(mac) != 6 {
		return fmt.Errorf("%w: hardware address %q", ErrInvalidAddress, mac.String())
	}

	// struct ifreq with the ifr_hwaddr sockaddr view.
	var ifr struct {
		name   [unix.IFNAMSIZ]byte
		family uint16
		data   [14]byte
	}
	copy(ifr.name[:unix.IFNAMSIZ-1], d.name)
	ifr.family = unix.ARPHRD_ETHER
	copy(ifr.data[:], mac)

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, file.Fd(), unix.SIOCSIFHWADDR, uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return fmt.Errorf("%w: SIOCSIFHWADDR on %s: %w", ErrDeviceSetupFailed, d.name, errno)
	}
	d.log.Debug("hardware address set", "name", d.name, "mac", mac.String())
	return nil
}

// SetIPv4Address assigns addr to the interface and brings the link up with
// the point-to-point, running and multicast flags, the way ifconfig does.
func (d *Device) SetIPv4Address(addr string) error {
	if d.file.Load() == nil {
		return ErrNotOpen
	}
	ip := net.ParseIP(addr)
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidAddress, addr)
	}

	// Address and flag ioctls go through a scratch socket, not the tun fd.
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("%w: socket: %w", ErrDeviceSetupFailed, err)
	}
	defer unix.Close(sock)

	ifr, err := unix.NewIfreq(d.name)
	if err != nil {
		return fmt.Errorf("%w: interface name %q: %w", ErrDeviceSetupFailed, d.name, err)
	}
	if err := ifr.SetInet4Addr(ip4); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidAddress, addr, err)
	}
	if err := unix.IoctlIfreq(sock, unix.SIOCSIFADDR, ifr); err != nil {
		return fmt.Errorf("%w: SIOCSIFADDR on %s: %w", ErrDeviceSetupFailed, d.name, err)
	}

	ifr, err = unix.NewIfreq(d.name)
	if err != nil {
		return fmt.Errorf("%w: interface name %q: %w", ErrDeviceSetupFailed, d.name, err)
	}
	ifr.SetUint16(unix.IFF_UP | unix.IFF_POINTOPOINT | unix.IFF_RUNNING | unix.IFF_MULTICAST)
	if err := unix.IoctlIfreq(sock, unix.SIOCSIFFLAGS, ifr); err != nil {
		return fmt.Errorf("%w: SIOCSIFFLAGS on %s: %w", ErrDeviceSetupFailed, d.name, err)
	}
	d.log.Info("ipv4 address set", "name", d.name, "addr", addr)
	return nil
}
