package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

// Metrics is a process-wide registry exposed in Prometheus text format.
// Every method is safe on a nil receiver so callers never need to check
// whether metrics are enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	llmRequests *CounterVec
	llmLatency  *HistogramVec
	jobRuns     *CounterVec
	jobLatency  *HistogramVec
	extractions *CounterVec
	plans       *CounterVec
	documents   *CounterVec
	queueDepth  *GaugeVec
	redisUp     *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the registry once. Disabled metrics yield a nil *Metrics.
func Init(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("quoteflow_api_requests_total", "API requests by method, route and status.", []string{"method", "route", "status"}),
			apiLatency:  NewHistogramVec("quoteflow_api_request_seconds", "API latency.", []string{"method", "route"}, nil),
			apiInflight: NewGauge("quoteflow_api_inflight", "In-flight API requests."),
			llmRequests: NewCounterVec("quoteflow_llm_requests_total", "Model calls by model and outcome.", []string{"model", "status"}),
			llmLatency:  NewHistogramVec("quoteflow_llm_request_seconds", "Model call latency.", []string{"model"}, []float64{1, 5, 10, 30, 60, 120}),
			jobRuns:     NewCounterVec("quoteflow_job_runs_total", "Job executions by type and outcome.", []string{"job_type", "status"}),
			jobLatency:  NewHistogramVec("quoteflow_job_run_seconds", "Job execution time.", []string{"job_type"}, []float64{0.5, 1, 5, 15, 30, 60, 180}),
			extractions: NewCounterVec("quoteflow_extractions_total", "Extraction runs by outcome and validity.", []string{"status", "valid"}),
			plans:       NewCounterVec("quoteflow_plan_generations_total", "Plan generation calls by outcome.", []string{"outcome"}),
			documents:   NewCounterVec("quoteflow_documents_total", "Rendered documents by type, format and outcome.", []string{"doc_type", "format", "status"}),
			queueDepth:  NewGaugeVec("quoteflow_job_queue_depth", "Job rows by status.", []string{"status"}),
			redisUp:     NewGauge("quoteflow_redis_up", "1 when the last Redis ping succeeded."),
		}
	})
	return instance
}

func Current() *Metrics { return instance }

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.jobRuns, m.jobLatency,
		m.extractions, m.plans, m.documents,
		m.queueDepth, m.redisUp,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	m.llmRequests.Inc(model, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model)
	}
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Inc(jobType, status)
	if dur > 0 {
		m.jobLatency.Observe(dur.Seconds(), jobType)
	}
}

func (m *Metrics) IncExtraction(status string, valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.extractions.Inc(status, v)
}

// IncPlanGeneration records "created", "existing" or "failed".
func (m *Metrics) IncPlanGeneration(outcome string) {
	if m == nil {
		return
	}
	m.plans.Inc(outcome)
}

func (m *Metrics) IncDocument(docType, format, status string) {
	if m == nil {
		return
	}
	m.documents.Inc(docType, format, status)
}

const scrapeInterval = 15 * time.Second

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
			}
		}
	}()
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	statuses := []string{jobs.StatusQueued, jobs.StatusRunning, jobs.StatusSucceeded, jobs.StatusFailed, jobs.StatusCanceled}
	go func() {
		ticker := time.NewTicker(scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectQueueDepth(ctx, log, db, statuses)
			}
		}
	}()
}

func (m *Metrics) collectQueueDepth(ctx context.Context, log *logger.Logger, db *gorm.DB, statuses []string) {
	for _, s := range statuses {
		m.queueDepth.Set(0, s)
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		if log != nil {
			log.Warn("metrics: job queue depth query failed", "error", err)
		}
		return
	}
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		m.queueDepth.Set(float64(row.Count), status)
	}
}
