package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "server",
	Name:      "connections_active",
	Help:      "Number of active ws connections",
})

var refusedAuthCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "authorize_refused_count",
	Help:      "Total number of refused authorization attempts.",
}, []string{"station_id"})

var transactionCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "transaction_started_count",
	Help:      "Total number of started transactions.",
}, []string{"station_id"})

var meterValueCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "meter_values_count",
	Help:      "Total number of processed MeterValues batches.",
}, []string{"station_id"})

var errorCounts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "station_error_count",
	Help:      "Total number of errors reported by stations.",
}, []string{"station_id", "code"})

func observeConnections(count int) {
	connectionsGauge.Set(float64(count))
}

func observeRefusedAuth(stationId string) {
	if len(stationId) == 0 {
		return
	}
	refusedAuthCounts.With(prometheus.Labels{"station_id": stationId}).Inc()
}

func observeTransactionStart(stationId string) {
	if len(stationId) == 0 {
		return
	}
	transactionCounts.With(prometheus.Labels{"station_id": stationId}).Inc()
}

func observeMeterValues(stationId string) {
	if len(stationId) == 0 {
		return
	}
	meterValueCounts.With(prometheus.Labels{"station_id": stationId}).Inc()
}

func observeError(stationId, code string) {
	if len(stationId) == 0 || len(code) == 0 {
		return
	}
	errorCounts.With(prometheus.Labels{"station_id": stationId, "code": code}).Inc()
}
