// Package netcfg configures tunnel interfaces through netlink: address,
// MTU, administrative state and routes. The ifconfig-style single-address
// path lives in pkg/tundev; this package covers what a bridge endpoint
// needs beyond it.
package netcfg

// InterfaceConfig describes the desired state of one interface.
type InterfaceConfig struct {
	Name    string
	Address string // CIDR, e.g. "10.9.0.1/30"; empty leaves addresses alone
	MTU     int    // zero leaves the MTU alone
}

// Route is a destination network reached through an interface, with an
// optional gateway.
type Route struct {
	Dest    string
	Gateway string
}
