package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	linkUp     prometheus.Gauge
	packets    *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	drops      *prometheus.CounterVec
	handshakes *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		linkUp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tunbridge_link_up",
			Help: "Whether a bridge link is established",
		}),
		packets: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tunbridge_packets_total",
			Help: "Bridged packets",
		}, []string{"direction"}),
		bytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tunbridge_bytes_total",
			Help: "Bridged bytes",
		}, []string{"direction"}),
		drops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tunbridge_drops_total",
			Help: "Dropped packets",
		}, []string{"reason"}),
		handshakes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tunbridge_handshakes_total",
			Help: "Handshake results",
		}, []string{"result"}),
	}
}
