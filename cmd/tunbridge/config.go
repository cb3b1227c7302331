package main

import (
	"fmt"
	"time"

	"github.com/dwhall/tundev/internal/config"
	"github.com/dwhall/tundev/pkg/bridge"
)

type Config struct {
	// Mode is "listen" or "dial".
	Mode string `yaml:"mode"`
	// Addr is the listen address or the peer address, depending on Mode.
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`

	TLSCert  string        `yaml:"tls_cert"`
	TLSKey   string        `yaml:"tls_key"`
	Insecure bool          `yaml:"insecure"`
	Timeout  time.Duration `yaml:"timeout"`

	MTU        int     `yaml:"mtu"`
	TunName    string  `yaml:"tun_name"`
	TunAddress string  `yaml:"tun_address"` // CIDR assigned to the local end
	Routes     []Route `yaml:"routes"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`

	HandshakeRate struct {
		PPS   int `yaml:"pps"`
		Burst int `yaml:"burst"`
	} `yaml:"handshake_rate"`
	HandshakeIPRate struct {
		PPS   int           `yaml:"pps"`
		Burst int           `yaml:"burst"`
		TTL   time.Duration `yaml:"ttl"`
	} `yaml:"handshake_ip_rate"`
}

type Route struct {
	Dest    string `yaml:"dest"`
	Gateway string `yaml:"gateway"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if err := config.Load(path, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MTU == 0 {
		cfg.MTU = bridge.DefaultMTU
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9100"
	}
	if cfg.HandshakeRate.PPS == 0 {
		cfg.HandshakeRate.PPS = 5
	}
	if cfg.HandshakeRate.Burst == 0 {
		cfg.HandshakeRate.Burst = 10
	}
	if cfg.HandshakeIPRate.PPS == 0 {
		cfg.HandshakeIPRate.PPS = 2
	}
	if cfg.HandshakeIPRate.Burst == 0 {
		cfg.HandshakeIPRate.Burst = 4
	}
	if cfg.HandshakeIPRate.TTL == 0 {
		cfg.HandshakeIPRate.TTL = time.Minute
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Mode {
	case "listen":
		if cfg.TLSCert == "" || cfg.TLSKey == "" {
			return fmt.Errorf("tls_cert and tls_key are required in listen mode")
		}
	case "dial":
	default:
		return fmt.Errorf("mode must be \"listen\" or \"dial\"")
	}
	if cfg.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if cfg.Token == "" {
		return fmt.Errorf("token is required")
	}
	if cfg.TunAddress == "" {
		return fmt.Errorf("tun_address is required")
	}
	return nil
}
