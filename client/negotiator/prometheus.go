package negotiator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusNegotiationCycles = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mediaclient_negotiation_cycles_total",
	Help: "Total number of offer/answer cycles",
})

var prometheusNegotiationFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mediaclient_negotiation_failures_total",
	Help: "Total number of failed offer/answer cycles",
})

var prometheusNegotiationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "mediaclient_negotiation_cycle_duration_seconds",
	Help:    "Duration of offer/answer cycles",
	Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

var prometheusEventSendFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mediaclient_negotiation_event_failures_total",
	Help: "Total number of track events that could not be sent",
})
