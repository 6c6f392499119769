package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrelay_delivery_outcomes_total",
		Help: "Delivery decisions by outcome.",
	}, []string{"outcome"})

	deliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailrelay_delivery_attempt_duration_seconds",
		Help:    "Duration of confirmation send attempts.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	relayPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailrelay_relay_published_total",
		Help: "Outbox records published to the stream.",
	})

	relayDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailrelay_relay_duplicates_total",
		Help: "Publishes the stream dropped as duplicates.",
	})

	relayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrelay_relay_failures_total",
		Help: "Relay failures by reason.",
	}, []string{"reason"})
)
