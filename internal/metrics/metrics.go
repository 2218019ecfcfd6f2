package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScrapePages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replypulse_scrape_pages_total",
		Help: "Total provider pages fetched",
	})
	RepliesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replypulse_replies_ingested_total",
		Help: "Total replies inserted after filtering and dedup",
	})
	EvalBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replypulse_eval_batches_total",
		Help: "Total evaluation batches processed",
	})
	EvalFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replypulse_eval_failures_total",
		Help: "Total per-reply scoring call failures",
	})
	SynthesisCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replypulse_synthesis_calls_total",
		Help: "Total synthesis service calls",
	})
	BudgetDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replypulse_budget_denied_total",
		Help: "Total rate-budget denials by resource",
	}, []string{"resource"})
	ScrapeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "replypulse_scrape_duration_seconds",
		Help:    "Scrape run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(ScrapePages, RepliesIngested, EvalBatches, EvalFailures, SynthesisCalls, BudgetDenied, ScrapeDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveScrapeDuration records a scrape run duration
func ObserveScrapeDuration(start time.Time) {
	ScrapeDuration.Observe(time.Since(start).Seconds())
}

// IncBudgetDenied increments the denial counter for a resource
func IncBudgetDenied(resource string) { BudgetDenied.WithLabelValues(resource).Inc() }
