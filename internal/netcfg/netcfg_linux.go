//go:build linux

package netcfg

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// ConfigureInterface applies cfg and brings the link up.
func ConfigureInterface(cfg InterfaceConfig) error {
	link, err := netlink.LinkByName(cfg.Name)
	if err != nil {
		return fmt.Errorf("link %s: %w", cfg.Name, err)
	}
	if cfg.MTU > 0 {
		if err := netlink.LinkSetMTU(link, cfg.MTU); err != nil {
			return fmt.Errorf("set mtu: %w", err)
		}
	}
	if cfg.Address != "" {
		addr, err := netlink.ParseAddr(cfg.Address)
		if err != nil {
			return fmt.Errorf("parse addr: %w", err)
		}
		_ = netlink.AddrDel(link, addr)
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("addr add: %w", err)
		}
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("link up: %w", err)
	}
	return nil
}

// AddRoutes installs routes through the named interface, replacing any
// stale duplicates first.
func AddRoutes(ifName string, routes []Route) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return fmt.Errorf("link %s: %w", ifName, err)
	}
	for _, r := range routes {
		route, err := buildRoute(link, r)
		if err != nil {
			return err
		}
		_ = netlink.RouteDel(route)
		if err := netlink.RouteAdd(route); err != nil {
			return fmt.Errorf("route add %s: %w", r.Dest, err)
		}
	}
	return nil
}

// DeleteRoutes removes routes installed by AddRoutes. Missing routes are
// not an error.
func DeleteRoutes(ifName string, routes []Route) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return fmt.Errorf("link %s: %w", ifName, err)
	}
	for _, r := range routes {
		route, err := buildRoute(link, r)
		if err != nil {
			return err
		}
		_ = netlink.RouteDel(route)
	}
	return nil
}

func buildRoute(link netlink.Link, r Route) (*netlink.Route, error) {
	if r.Dest == "" {
		return nil, fmt.Errorf("route needs a destination")
	}
	_, dst, err := net.ParseCIDR(r.Dest)
	if err != nil {
		return nil, fmt.Errorf("parse route dst %q: %w", r.Dest, err)
	}
	var gw net.IP
	if r.Gateway != "" {
		gw = net.ParseIP(r.Gateway)
		if gw == nil {
			return nil, fmt.Errorf("parse route gw %q", r.Gateway)
		}
	}
	return &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       dst,
		Gw:        gw,
	}, nil
}
