package sentinel

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	executedCount         prometheus.Counter
	confirmedCount        prometheus.Counter
	rejectedCount         prometheus.Counter
	unknownCount          prometheus.Counter
	staticInvalidCount    prometheus.Counter
	validationFailedCount prometheus.Counter
	peerSolicitationCount prometheus.Counter
	coordinatorRetryCount prometheus.Counter
	inFlightGauge         prometheus.Gauge
}

func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	m := Metrics{
		executedCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_executed_tx_count", namespace),
			Help: "The total number of execute requests received",
		}),
		confirmedCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_confirmed_tx_count", namespace),
			Help: "The total number of transactions confirmed by the coordinator",
		}),
		rejectedCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rejected_tx_count", namespace),
			Help: "The total number of transactions rejected during execution",
		}),
		unknownCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_unknown_tx_count", namespace),
			Help: "The total number of transactions with an inconclusive coordinator result",
		}),
		staticInvalidCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_static_invalid_tx_count", namespace),
			Help: "The total number of transactions rejected by local validation",
		}),
		validationFailedCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_validation_failed_tx_count", namespace),
			Help: "The total number of transactions refused an attestation",
		}),
		peerSolicitationCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_peer_solicitation_count", namespace),
			Help: "The total number of attestation requests sent to peers",
		}),
		coordinatorRetryCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_coordinator_retry_count", namespace),
			Help: "The total number of coordinator submissions refused at admission",
		}),
		inFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_in_flight_tx", namespace),
			Help: "The number of execute requests currently in flight",
		}),
	}
	return &m
}
