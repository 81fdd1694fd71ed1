package transaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusFramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mediaclient_frames_received_total",
	Help: "Total number of received signalling frames",
}, []string{"type"})

var prometheusFramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mediaclient_frames_sent_total",
	Help: "Total number of sent signalling frames",
}, []string{"type"})

var prometheusFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mediaclient_frames_dropped_total",
	Help: "Total number of received frames that could not be parsed or matched",
})

var prometheusTransactionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "mediaclient_transactions_active",
	Help: "Number of commands waiting for an answer",
})

var prometheusTransactionsRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mediaclient_transactions_rejected_total",
	Help: "Total number of commands rejected by the remote side",
})
