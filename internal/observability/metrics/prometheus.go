package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector exposes simulation metrics to Prometheus.
type Collector struct {
	logger   *logrus.Logger
	registry *prometheus.Registry

	roundsTotal          *prometheus.CounterVec
	aggregationDuration  *prometheus.HistogramVec
	clientFailuresTotal  prometheus.Counter
	clusteringIterations prometheus.Histogram
	activeClients        prometheus.Gauge
	globalLoss           prometheus.Gauge
	globalAccuracy       prometheus.Gauge
}

// NewCollector creates and registers the simulation metrics.
func NewCollector(logger *logrus.Logger) *Collector {
	if logger == nil {
		logger = logrus.New()
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		logger:   logger,
		registry: registry,
		roundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flsim",
			Name:      "rounds_total",
			Help:      "Completed simulation rounds by outcome",
		}, []string{"outcome"}),
		aggregationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flsim",
			Name:      "aggregation_duration_seconds",
			Help:      "Time spent aggregating client updates",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"strategy"}),
		clientFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flsim",
			Name:      "client_failures_total",
			Help:      "Clients that ended a round in the error state",
		}),
		clusteringIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flsim",
			Name:      "clustering_iterations",
			Help:      "K-means iterations per clustered aggregation",
			Buckets:   prometheus.LinearBuckets(1, 10, 10),
		}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flsim",
			Name:      "active_clients",
			Help:      "Clients currently advancing through a round",
		}),
		globalLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flsim",
			Name:      "global_loss",
			Help:      "Global model loss after the latest round",
		}),
		globalAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flsim",
			Name:      "global_accuracy",
			Help:      "Global model accuracy after the latest round",
		}),
	}

	registry.MustRegister(
		c.roundsTotal,
		c.aggregationDuration,
		c.clientFailuresTotal,
		c.clusteringIterations,
		c.activeClients,
		c.globalLoss,
		c.globalAccuracy,
	)

	return c
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRound records the outcome of one round.
func (c *Collector) ObserveRound(outcome string, strategy string, aggregation time.Duration, failures int, loss, accuracy float64) {
	c.roundsTotal.WithLabelValues(outcome).Inc()
	c.aggregationDuration.WithLabelValues(strategy).Observe(aggregation.Seconds())
	c.clientFailuresTotal.Add(float64(failures))
	c.globalLoss.Set(loss)
	c.globalAccuracy.Set(accuracy)
}

// ObserveClustering records the iteration count of one k-means run.
func (c *Collector) ObserveClustering(iterations int) {
	c.clusteringIterations.Observe(float64(iterations))
}

// SetActiveClients tracks how many clients are mid-round.
func (c *Collector) SetActiveClients(n int) {
	c.activeClients.Set(float64(n))
}
