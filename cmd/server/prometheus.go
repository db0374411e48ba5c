package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miretskiy/manetsim/experiment"
	"github.com/miretskiy/manetsim/simulator"
)

var (
	registry = prometheus.NewRegistry()

	// Prometheus metrics (gauges)
	promMetrics = struct {
		time          prometheus.Gauge
		population    prometheus.Gauge
		pending       prometheus.Gauge
		avgNeighbors  prometheus.Gauge
		avgPutTime    prometheus.Gauge
		avgGetTime    prometheus.Gauge
		totalMessages prometheus.Gauge
		outcomes      *prometheus.GaugeVec
	}{
		time: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manetsim_time",
			Help: "Current simulated time",
		}),
		population: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manetsim_population",
			Help: "Number of live nodes",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manetsim_pending_events",
			Help: "Events waiting in the queue",
		}),
		avgNeighbors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manetsim_avg_neighbors",
			Help: "Average neighbour count seen by neighbour refreshes",
		}),
		avgPutTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manetsim_avg_put_time",
			Help: "Average forward time of successful PUTs",
		}),
		avgGetTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manetsim_avg_get_time",
			Help: "Average forward time of successful GETs",
		}),
		totalMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "manetsim_messages",
			Help: "Event ids dispatched so far",
		}),
		outcomes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "manetsim_request_outcomes",
			Help: "Request outcomes so far, by operation",
		}, []string{"op", "outcome"}),
	}
)

func initPrometheusMetrics() {
	registry.MustRegister(
		promMetrics.time,
		promMetrics.population,
		promMetrics.pending,
		promMetrics.avgNeighbors,
		promMetrics.avgPutTime,
		promMetrics.avgGetTime,
		promMetrics.totalMessages,
		promMetrics.outcomes,
	)
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func updatePrometheusMetrics(res experiment.Result, pending int) {
	promMetrics.time.Set(float64(res.Time))
	promMetrics.population.Set(float64(res.Population))
	promMetrics.pending.Set(float64(pending))
	promMetrics.avgNeighbors.Set(res.AvgNeighbors)
	promMetrics.avgPutTime.Set(res.AvgPutTime)
	promMetrics.avgGetTime.Set(res.AvgGetTime)
	promMetrics.totalMessages.Set(float64(res.TotalMessages))
	setOutcomes("put", res.Put)
	setOutcomes("get", res.Get)
}

func setOutcomes(op string, s simulator.Summary) {
	for outcome, n := range map[string]int{
		"messages":  s.Messages,
		"dropped":   s.Dropped,
		"success":   s.Success,
		"isolated":  s.Isolated,
		"lost":      s.Lost,
		"full":      s.Full,
		"duplicate": s.Duplicate,
		"retry":     s.Retry,
		"missing":   s.Missing,
	} {
		promMetrics.outcomes.WithLabelValues(op, outcome).Set(float64(n))
	}
}
