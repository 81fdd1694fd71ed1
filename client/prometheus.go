package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusPeerConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaclient_peer_connections_active",
		Help: "Number of managed peer connections",
	})

	prometheusPeerConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaclient_peer_connections_total",
		Help: "Total number of created managed peer connections",
	})

	prometheusBackgroundNegotiationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaclient_background_negotiation_failures_total",
		Help: "Total number of failed negotiations started by server events",
	})

	prometheusViewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaclient_views_total",
		Help: "Total number of view commands by result",
	}, []string{"result"})
)
