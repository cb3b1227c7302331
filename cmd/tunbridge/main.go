// tunbridge joins two hosts with a point-to-point packet bridge: each end
// owns a local tun interface and relays its packets to the peer as
// AEAD-sealed QUIC datagrams. One end listens, the other dials.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go"

	"github.com/dwhall/tundev/internal/bufferpool"
	"github.com/dwhall/tundev/internal/logging"
	"github.com/dwhall/tundev/internal/netcfg"
	"github.com/dwhall/tundev/pkg/bridge"
	"github.com/dwhall/tundev/pkg/tundev"
)

const (
	alpn          = "tunbridge"
	maxPacketSize = 65535
	replayWindow  = 2048
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "tunbridge.yaml", "path to config file")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		slog.Error("logger error", "err", err)
		os.Exit(1)
	}

	metrics := NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bridge error", "err", err)
		time.Sleep(100 * time.Millisecond)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log *slog.Logger, m *Metrics) error {
	dev, cleanup, err := openDevice(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	metricsSrv := startMetricsServer(cfg, log)
	defer metricsSrv.Close()

	switch cfg.Mode {
	case "listen":
		return runListen(ctx, cfg, dev, log, m)
	case "dial":
		return runDial(ctx, cfg, dev, log, m)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func openDevice(cfg Config, log *slog.Logger) (*tundev.Device, func(), error) {
	dev, err := tundev.Open(tundev.Config{
		Mode:         tundev.TUN,
		Name:         cfg.TunName,
		NoPacketInfo: true,
		Logger:       log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("tun open: %w", err)
	}
	if err := netcfg.ConfigureInterface(netcfg.InterfaceConfig{
		Name:    dev.Name(),
		Address: cfg.TunAddress,
		MTU:     cfg.MTU,
	}); err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("configure tun: %w", err)
	}
	routes := make([]netcfg.Route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		routes = append(routes, netcfg.Route{Dest: r.Dest, Gateway: r.Gateway})
	}
	if err := netcfg.AddRoutes(dev.Name(), routes); err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("routes: %w", err)
	}
	cleanup := func() {
		if err := netcfg.DeleteRoutes(dev.Name(), routes); err != nil {
			log.Warn("route cleanup failed", "err", err)
		}
		dev.Close()
	}
	return dev, cleanup, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

func runDial(ctx context.Context, cfg Config, dev *tundev.Device, log *slog.Logger, m *Metrics) error {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return fmt.Errorf("invalid peer address: %w", err)
	}
	tlsConf := &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
		NextProtos:         []string{alpn},
		ServerName:         host,
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	conn, err := quic.DialAddr(dialCtx, cfg.Addr, tlsConf, quicConfig())
	if err != nil {
		m.handshakes.WithLabelValues("dial-failed").Inc()
		return fmt.Errorf("quic dial: %w", err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(dialCtx)
	if err != nil {
		return fmt.Errorf("open hello stream: %w", err)
	}
	_ = stream.SetDeadline(time.Now().Add(cfg.Timeout))
	dialNonce, err := bridge.NewHandshakeNonce()
	if err != nil {
		return err
	}
	if err := bridge.WriteHello(stream, dialNonce); err != nil {
		m.handshakes.WithLabelValues("hello-failed").Inc()
		return err
	}
	listenNonce, err := bridge.ReadHello(stream)
	if err != nil {
		m.handshakes.WithLabelValues("hello-failed").Inc()
		return err
	}

	km, err := bridge.DeriveKeys(cfg.Token, dialNonce, listenNonce)
	if err != nil {
		return err
	}
	send, recv, err := km.CipherStates(true, bridge.NewReplayWindow(replayWindow))
	if err != nil {
		return err
	}
	link := newInstrumentedLink(cfg.MTU, send, recv, m)
	m.handshakes.WithLabelValues("ok").Inc()
	log.Info("bridge established", "peer", cfg.Addr, "tun", dev.Name())

	return runLink(ctx, link, dev, conn, m)
}

func runListen(ctx context.Context, cfg Config, dev *tundev.Device, log *slog.Logger, m *Metrics) error {
	tlsCert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return fmt.Errorf("load cert: %w", err)
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{alpn},
	}
	ln, err := quic.ListenAddr(cfg.Addr, tlsConf, quicConfig())
	if err != nil {
		return fmt.Errorf("quic listen: %w", err)
	}
	defer ln.Close()
	log.Info("listening", "addr", cfg.Addr, "tun", dev.Name())

	limiter := newHandshakeLimiter(
		cfg.HandshakeRate.PPS, cfg.HandshakeRate.Burst,
		cfg.HandshakeIPRate.PPS, cfg.HandshakeIPRate.Burst, cfg.HandshakeIPRate.TTL)

	// One goroutine owns the device read side for the process lifetime and
	// seals into whichever link is current; per-peer goroutines own the
	// receive side.
	var current atomic.Pointer[peerLink]
	go deviceReadLoop(dev, &current, m, log)

	var busy atomic.Bool
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return err
		}
		ip := remoteIP(conn.RemoteAddr().String())
		if !limiter.Allow(ip) {
			m.handshakes.WithLabelValues("limited").Inc()
			conn.CloseWithError(1, "slow down")
			continue
		}
		if !busy.CompareAndSwap(false, true) {
			m.handshakes.WithLabelValues("busy").Inc()
			conn.CloseWithError(2, "link busy")
			continue
		}
		go func() {
			defer busy.Store(false)
			if err := servePeer(ctx, cfg, conn, dev, &current, log, m); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("peer link ended", "peer", ip, "err", err)
			}
		}()
	}
}

// peerLink is the established state the device read loop seals into.
type peerLink struct {
	link *bridge.Link
	conn bridge.DatagramConn
}

func servePeer(ctx context.Context, cfg Config, conn *quic.Conn, dev *tundev.Device, current *atomic.Pointer[peerLink], log *slog.Logger, m *Metrics) error {
	defer conn.CloseWithError(0, "")

	helloCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	stream, err := conn.AcceptStream(helloCtx)
	if err != nil {
		m.handshakes.WithLabelValues("hello-failed").Inc()
		return fmt.Errorf("accept hello stream: %w", err)
	}
	_ = stream.SetDeadline(time.Now().Add(cfg.Timeout))
	dialNonce, err := bridge.ReadHello(stream)
	if err != nil {
		m.handshakes.WithLabelValues("hello-failed").Inc()
		return err
	}
	listenNonce, err := bridge.NewHandshakeNonce()
	if err != nil {
		return err
	}
	if err := bridge.WriteHello(stream, listenNonce); err != nil {
		m.handshakes.WithLabelValues("hello-failed").Inc()
		return err
	}

	km, err := bridge.DeriveKeys(cfg.Token, dialNonce, listenNonce)
	if err != nil {
		return err
	}
	send, recv, err := km.CipherStates(false, bridge.NewReplayWindow(replayWindow))
	if err != nil {
		return err
	}
	link := newInstrumentedLink(cfg.MTU, send, recv, m)
	m.handshakes.WithLabelValues("ok").Inc()
	m.linkUp.Set(1)
	log.Info("bridge established", "peer", conn.RemoteAddr().String(), "tun", dev.Name())

	cc := &countingConn{inner: conn, m: m}
	current.Store(&peerLink{link: link, conn: cc})
	defer func() {
		current.Store(nil)
		m.linkUp.Set(0)
	}()

	err = link.PumpConnToDevice(ctx, dev, cc)
	if err == nil {
		log.Info("peer closed the link")
	}
	return err
}

// deviceReadLoop runs for the whole process on the listen side, dropping
// packets while no peer is attached.
func deviceReadLoop(dev *tundev.Device, current *atomic.Pointer[peerLink], m *Metrics, log *slog.Logger) {
	pool := bufferpool.New(maxPacketSize)
	for {
		buf := pool.Get()
		n, err := dev.Read(buf)
		if err != nil {
			pool.Put(buf)
			if !errors.Is(err, os.ErrClosed) {
				log.Error("device read failed", "err", err)
			}
			return
		}
		pl := current.Load()
		if pl == nil {
			m.drops.WithLabelValues("no-link").Inc()
			pool.Put(buf)
			continue
		}
		frame, err := pl.link.EncodePacket(buf[:n])
		pool.Put(buf)
		if err != nil {
			m.drops.WithLabelValues("oversized").Inc()
			continue
		}
		if err := pl.conn.SendDatagram(frame); err != nil {
			m.drops.WithLabelValues("send").Inc()
		}
	}
}

func runLink(ctx context.Context, link *bridge.Link, dev *tundev.Device, conn bridge.DatagramConn, m *Metrics) error {
	cc := &countingConn{inner: conn, m: m}
	m.linkUp.Set(1)
	defer m.linkUp.Set(0)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := bufferpool.New(maxPacketSize)
	errCh := make(chan error, 2)
	go func() {
		errCh <- link.PumpDeviceToConn(loopCtx, dev, cc, pool)
	}()
	go func() {
		errCh <- link.PumpConnToDevice(loopCtx, dev, cc)
	}()

	select {
	case <-ctx.Done():
		link.SendClose(cc)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func newInstrumentedLink(mtu int, send, recv *bridge.CipherState, m *Metrics) *bridge.Link {
	link := bridge.NewLink(mtu, send, recv)
	link.OnDrop = func(reason string) {
		m.drops.WithLabelValues(reason).Inc()
	}
	return link
}

// countingConn wraps the QUIC connection with traffic counters.
type countingConn struct {
	inner bridge.DatagramConn
	m     *Metrics
}

func (c *countingConn) SendDatagram(b []byte) error {
	if err := c.inner.SendDatagram(b); err != nil {
		return err
	}
	c.m.packets.WithLabelValues("tx").Inc()
	c.m.bytes.WithLabelValues("tx").Add(float64(len(b)))
	return nil
}

func (c *countingConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	b, err := c.inner.ReceiveDatagram(ctx)
	if err != nil {
		return nil, err
	}
	c.m.packets.WithLabelValues("rx").Inc()
	c.m.bytes.WithLabelValues("rx").Add(float64(len(b)))
	return b, nil
}

func startMetricsServer(cfg Config, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "err", err)
		}
	}()
	return srv
}
