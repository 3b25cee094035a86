// Package telemetry tracks pipeline metrics and judge spend. Counters are
// exported through prometheus; cost aggregation is kept in memory the same
// way run history is, guarded by a mutex.
package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/scout/config"
)

var (
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_pipeline_runs_total",
		Help: "Completed aggregation pipeline runs.",
	}, []string{"outcome"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scout_pipeline_run_duration_seconds",
		Help:    "Wall-clock duration of pipeline runs.",
		Buckets: prometheus.DefBuckets,
	})

	rawResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_results_raw_total",
		Help: "Raw results obtained from crawler dispatch.",
	}, []string{"platform"})

	keptResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_results_kept_total",
		Help: "Results retained by the relevance filter.",
	}, []string{"platform"})

	judgeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_judge_calls_total",
		Help: "Judge oracle invocations by outcome.",
	}, []string{"outcome"})

	judgeTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_judge_tokens_total",
		Help: "Tokens exchanged with the judge oracle.",
	}, []string{"direction"})
)

// Telemetry aggregates run metrics and judge cost for one process.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu            sync.RWMutex
	totalRuns     int64
	failedRuns    int64
	totalDuration time.Duration
	totalCost     float64
	totalTokens   int64
	modelCosts    map[string]float64
}

// RunEvent describes one completed pipeline run.
type RunEvent struct {
	Keywords     []string
	Platforms    []string
	TotalResults int
	Degraded     bool
	Duration     time.Duration
}

// CostSummary is a point-in-time view of accumulated judge spend.
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	ModelCosts  map[string]float64
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config:     cfg,
		logger:     log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		modelCosts: make(map[string]float64),
	}
}

// RecordRunEvent records a completed pipeline run.
func (t *Telemetry) RecordRunEvent(event RunEvent) {
	if t == nil || !t.config.Enabled {
		return
	}

	outcome := "ok"
	if event.Degraded {
		outcome = "degraded"
	}
	pipelineRuns.WithLabelValues(outcome).Inc()
	pipelineDuration.Observe(event.Duration.Seconds())

	t.mu.Lock()
	t.totalRuns++
	if event.Degraded {
		t.failedRuns++
	}
	t.totalDuration += event.Duration
	t.mu.Unlock()
}

// RecordDispatch records raw-result volume for one platform.
func (t *Telemetry) RecordDispatch(platform string, rawCount int) {
	if t == nil || !t.config.Enabled {
		return
	}
	rawResults.WithLabelValues(platform).Add(float64(rawCount))
}

// RecordFilter records how many results the filter retained for a platform.
func (t *Telemetry) RecordFilter(platform string, keptCount int) {
	if t == nil || !t.config.Enabled {
		return
	}
	keptResults.WithLabelValues(platform).Add(float64(keptCount))
}

// RecordJudgeUsage records one judge call with its token usage and cost.
func (t *Telemetry) RecordJudgeUsage(model string, inputTokens, outputTokens int64, cost float64, err error) {
	if t == nil || !t.config.Enabled {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	judgeCalls.WithLabelValues(outcome).Inc()
	judgeTokens.WithLabelValues("input").Add(float64(inputTokens))
	judgeTokens.WithLabelValues("output").Add(float64(outputTokens))

	if !t.config.CostTracking {
		return
	}
	t.mu.Lock()
	t.totalCost += cost
	t.totalTokens += inputTokens + outputTokens
	t.modelCosts[model] += cost
	t.mu.Unlock()
}

// CalculateCost converts token usage to dollars for the given model rates.
func (t *Telemetry) CalculateCost(inputTokens, outputTokens int64, costPer1KInput, costPer1KOutput float64) float64 {
	inputCost := float64(inputTokens) / 1000.0 * costPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * costPer1KOutput
	return inputCost + outputCost
}

// GetCostSummary returns accumulated spend since process start.
func (t *Telemetry) GetCostSummary() CostSummary {
	if t == nil {
		return CostSummary{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	models := make(map[string]float64, len(t.modelCosts))
	for k, v := range t.modelCosts {
		models[k] = v
	}
	return CostSummary{TotalCost: t.totalCost, TotalTokens: t.totalTokens, ModelCosts: models}
}

// Shutdown logs a final usage report.
func (t *Telemetry) Shutdown() {
	if t == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.logger.Printf("Final report: runs=%d degraded=%d cost=$%.4f tokens=%d",
		t.totalRuns, t.failedRuns, t.totalCost, t.totalTokens)
}
