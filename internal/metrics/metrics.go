package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for upload processing and question answering,
// registered on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	FilesProcessed *prometheus.CounterVec
	ChunksIndexed  prometheus.Gauge
	Questions      *prometheus.CounterVec
	AnswerDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FilesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studymate_files_processed_total",
			Help: "Uploaded files by processing outcome.",
		}, []string{"status"}),
		ChunksIndexed: f.NewGauge(prometheus.GaugeOpts{
			Name: "studymate_chunks_indexed",
			Help: "Chunks in the current index.",
		}),
		Questions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "studymate_questions_total",
			Help: "Questions asked by outcome.",
		}, []string{"outcome"}),
		AnswerDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "studymate_answer_duration_seconds",
			Help:    "Time spent retrieving and answering a question.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
	}
}

// Registry exposes the registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
