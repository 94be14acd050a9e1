package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal        uint64
	RequestsInProgress   uint64
	RequestsSuccess      uint64
	RequestsFailed       uint64
	AssessmentsTotal     uint64
	AssessmentsRunning   uint64
	AssessmentsFailed    uint64
	EvaluatorCallsTotal  uint64
	EvaluatorCallsFailed uint64
	StartTime            time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementAssessments increments total assessment counter
func IncrementAssessments() {
	atomic.AddUint64(&globalMetrics.AssessmentsTotal, 1)
}

// IncrementAssessmentsRunning increments running assessment counter
func IncrementAssessmentsRunning() {
	atomic.AddUint64(&globalMetrics.AssessmentsRunning, 1)
}

// DecrementAssessmentsRunning decrements running assessment counter
func DecrementAssessmentsRunning() {
	atomic.AddUint64(&globalMetrics.AssessmentsRunning, ^uint64(0))
}

// IncrementAssessmentsFailed increments failed assessment counter
func IncrementAssessmentsFailed() {
	atomic.AddUint64(&globalMetrics.AssessmentsFailed, 1)
}

// IncrementEvaluatorCalls increments total evaluator call counter
func IncrementEvaluatorCalls() {
	atomic.AddUint64(&globalMetrics.EvaluatorCallsTotal, 1)
}

// IncrementEvaluatorCallsFailed increments failed evaluator call counter
func IncrementEvaluatorCallsFailed() {
	atomic.AddUint64(&globalMetrics.EvaluatorCallsFailed, 1)
}

// MetricsMiddleware counts requests and outcomes
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler exposes the counters plus runtime stats as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	out := map[string]any{
		"uptime_seconds":         time.Since(globalMetrics.StartTime).Seconds(),
		"requests_total":         atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress":   atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":       atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":        atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"assessments_total":      atomic.LoadUint64(&globalMetrics.AssessmentsTotal),
		"assessments_running":    atomic.LoadUint64(&globalMetrics.AssessmentsRunning),
		"assessments_failed":     atomic.LoadUint64(&globalMetrics.AssessmentsFailed),
		"evaluator_calls_total":  atomic.LoadUint64(&globalMetrics.EvaluatorCallsTotal),
		"evaluator_calls_failed": atomic.LoadUint64(&globalMetrics.EvaluatorCallsFailed),
		"goroutines":             runtime.NumGoroutine(),
		"heap_alloc_bytes":       m.HeapAlloc,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
