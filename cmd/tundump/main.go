// tundump opens a tun/tap interface and hex-dumps every packet it receives
// until interrupted. Useful for poking at the device by hand.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/dwhall/tundev/internal/bufferpool"
	"github.com/dwhall/tundev/internal/iputil"
	"github.com/dwhall/tundev/internal/logging"
	"github.com/dwhall/tundev/pkg/tundev"
)

func main() {
	var (
		modeName = flag.String("mode", "tun", "device mode: tun or tap")
		name     = flag.String("name", "", "interface name pattern, e.g. tun%d (empty lets the kernel pick)")
		devPath  = flag.String("dev", tundev.DefaultDevicePath, "clone device path")
		noPI     = flag.Bool("no-pi", false, "suppress the 4-byte packet-info prefix")
		ipv4     = flag.String("ipv4", "", "IPv4 address to assign after opening")
		mac      = flag.String("mac", "", "hardware address to assign (tap only)")
		recvSize = flag.Int("recv-size", tundev.DefaultReceiveSize, "receive buffer size")
		dumpRate = flag.Float64("dump-rate", 50, "max packets dumped per second, 0 for unlimited")
		logLevel = flag.String("log-level", "info", "log level")
		logJSON  = flag.Bool("log-json", false, "log in JSON")
	)
	flag.Parse()

	logger, err := logging.New(*logLevel, *logJSON)
	if err != nil {
		slog.Error("logger error", "err", err)
		os.Exit(1)
	}

	var mode tundev.Mode
	switch *modeName {
	case "tun":
		mode = tundev.TUN
	case "tap":
		mode = tundev.TAP
	default:
		logger.Error("unknown mode", "mode", *modeName)
		os.Exit(1)
	}

	dev, err := tundev.Open(tundev.Config{
		Mode:         mode,
		Name:         *name,
		NoPacketInfo: *noPI,
		DevicePath:   *devPath,
		Logger:       logger,
	})
	if err != nil {
		if errors.Is(err, tundev.ErrPermissionDenied) {
			fmt.Fprintf(os.Stderr,
				"You do not have the privileges to create a %s interface via %s.\n"+
					"Either run with CAP_NET_ADMIN (e.g. as root) or take ownership\n"+
					"of the clone device.\n", *modeName, *devPath)
		}
		logger.Error("open failed", "err", err)
		os.Exit(1)
	}
	defer dev.Close()

	if *ipv4 != "" {
		if err := dev.SetIPv4Address(*ipv4); err != nil {
			logger.Error("set ipv4 failed", "err", err)
			os.Exit(1)
		}
	}
	if *mac != "" {
		hw, err := net.ParseMAC(*mac)
		if err != nil {
			logger.Error("bad hardware address", "mac", *mac, "err", err)
			os.Exit(1)
		}
		if err := dev.SetMACAddress(hw); err != nil {
			logger.Error("set mac failed", "err", err)
			os.Exit(1)
		}
	}

	printHint(dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		dumpLoop(dev, *recvSize, *dumpRate, logger)
	}()

	<-ctx.Done()
	dev.Close() // unblocks the read
	<-done
	fmt.Println("Closed.")
}

func dumpLoop(dev *tundev.Device, recvSize int, dumpRate float64, logger *slog.Logger) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if dumpRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(dumpRate), int(dumpRate)+1)
	}
	pool := bufferpool.New(recvSize)
	var throttled uint64
	for {
		buf := pool.Get()
		n, err := dev.Read(buf)
		if err != nil {
			pool.Put(buf)
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, tundev.ErrNotOpen) {
				logger.Error("receive failed", "err", err)
			}
			if throttled > 0 {
				logger.Info("packets not dumped due to rate limit", "count", throttled)
			}
			return
		}
		pkt := buf[:n]
		if !limiter.Allow() {
			throttled++
			pool.Put(buf)
			continue
		}
		logger.Info("packet received", "bytes", n, "summary", summarize(dev, pkt))
		fmt.Print(hex.Dump(pkt))
		fmt.Println()
		pool.Put(buf)
	}
}

// summarize renders a src -> dst line when the payload parses as IP.
func summarize(dev *tundev.Device, pkt []byte) string {
	payload := pkt
	if !dev.NoPacketInfo() {
		_, rest, err := tundev.ParsePacketInfo(pkt)
		if err != nil {
			return "short packet"
		}
		payload = rest
	}
	src, err := iputil.PacketSource(payload)
	if err != nil {
		return "not ip"
	}
	dst, err := iputil.PacketDest(payload)
	if err != nil {
		return "not ip"
	}
	return fmt.Sprintf("%s -> %s", src, dst)
}

func printHint(dev *tundev.Device) {
	fmt.Printf("Interface %q is up for dumping.\n", dev.Name())
	fmt.Println("To exercise it, configure it first:")
	fmt.Printf("    $ ip addr add 192.168.42.1/24 dev %s\n", dev.Name())
	fmt.Printf("    $ ip link set %s up\n", dev.Name())
	fmt.Println("then send some traffic into the subnet:")
	fmt.Println("    $ ping 192.168.42.42")
}
