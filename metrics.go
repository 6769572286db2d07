package stagemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// stagesTotal counts analysed stages by terminal status.
var stagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stagemetrics",
		Name:      "stages_total",
		Help:      "Number of stages analysed, by terminal status",
	}, []string{"status"},
)

// deliveriesTotal counts payload deliveries by result.
var deliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stagemetrics",
		Name:      "deliveries_total",
		Help:      "Number of stage payload deliveries attempted, by result",
	}, []string{"result"},
)

// deliveryLatency records the time taken (in milliseconds) to deliver one stage payload.
var deliveryLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "stagemetrics",
		Name:      "delivery_latency_millis",
		Help:      "Time taken to deliver a stage payload in milliseconds",
		Buckets:   []float64{25, 50, 100, 200, 400, 800, 1600, 3200, 6400},
	}, []string{"result"},
)

// runErrorsTotal counts errors recorded to the error log, by kind.
var runErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stagemetrics",
		Name:      "run_errors_total",
		Help:      "Number of errors recorded while processing completed runs, by kind",
	}, []string{"kind"},
)

// RegisterMetrics registers all stagemetrics metrics with a prometheus registry.
func RegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(
		stagesTotal,
		deliveriesTotal,
		deliveryLatency,
		runErrorsTotal,
	)
}
