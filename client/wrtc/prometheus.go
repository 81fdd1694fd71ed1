package wrtc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRTPPacketsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaclient_rtp_packets_received_total",
		Help: "Total number of received RTP packets",
	})

	prometheusRTPPacketsReceivedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaclient_rtp_packets_received_bytes_total",
		Help: "Total number of received bytes in RTP packets",
	})

	prometheusRTCPPacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaclient_rtcp_packets_sent_total",
		Help: "Total number of sent RTCP packets",
	})

	prometheusTracksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaclient_tracks_active",
		Help: "Number of remote tracks being read",
	})
)
