// Package metrics provides in-process counters for dispatches and health checks.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics.
type Collector struct {
	// Counters
	requestsTotal  atomic.Int64
	errorsTotal    atomic.Int64
	timeoutsTotal  atomic.Int64
	healthTotal    atomic.Int64
	healthFailures atomic.Int64
	ledgerRecords  atomic.Int64
	bytesTotal     atomic.Int64

	// Rate tracking
	requestsInWindow atomic.Int64
	errorsInWindow   atomic.Int64
	windowStart      atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Gauges
	inFlight  atomic.Int64
	endpoints atomic.Int64

	// Histograms (buckets for response times in ms)
	responseTimeBuckets [10]atomic.Int64 // <10, <50, <100, <250, <500, <1000, <2500, <5000, <10000, >=10000

	// Error breakdown by error type
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Status code breakdown
	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	// Requests by endpoint type
	typeCounts map[string]*atomic.Int64
	typeMu     sync.RWMutex

	startMu   sync.RWMutex
	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	now := time.Now()
	c := &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		typeCounts:  make(map[string]*atomic.Int64),
		startTime:   now,
	}
	c.windowStart.Store(now.UnixNano())
	return c
}

// RecordDispatch records one completed dispatch. errType is empty on success.
func (c *Collector) RecordDispatch(endpointType string, status int, elapsed time.Duration, errType string) {
	c.RecordRequest(endpointType)
	c.RecordResponseTime(elapsed)
	if status > 0 {
		c.RecordStatusCode(status)
	}
	if errType != "" {
		c.RecordError(errType)
	}
}

// RecordRequest records a dispatched request.
func (c *Collector) RecordRequest(endpointType string) {
	c.requestsTotal.Add(1)
	c.requestsInWindow.Add(1)
	incr(&c.typeMu, &c.typeCounts, endpointType)
}

// RecordError records an error by type.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)
	c.errorsInWindow.Add(1)
	if errorType == "timeout" {
		c.timeoutsTotal.Add(1)
	}
	incr(&c.errorMu, &c.errorCounts, errorType)
}

// RecordHealthCheck records a connection test outcome.
func (c *Collector) RecordHealthCheck(success bool) {
	c.healthTotal.Add(1)
	if !success {
		c.healthFailures.Add(1)
	}
}

// RecordLedgerAppend records a ledger write.
func (c *Collector) RecordLedgerAppend() {
	c.ledgerRecords.Add(1)
}

// RecordResponseTime records a response time.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[c.getBucket(ms)].Add(1)
}

// getBucket returns the histogram bucket for a given response time.
func (c *Collector) getBucket(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 2500:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

// RecordStatusCode records an HTTP status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// RecordBytes records received bytes.
func (c *Collector) RecordBytes(n int64) {
	c.bytesTotal.Add(n)
}

// AddInFlight adjusts the number of calls waiting on the network.
func (c *Collector) AddInFlight(delta int64) {
	c.inFlight.Add(delta)
}

// SetEndpoints sets the number of registered endpoints.
func (c *Collector) SetEndpoints(n int64) {
	c.endpoints.Store(n)
}

// GetRequestsPerSecond returns the current requests per second rate.
func (c *Collector) GetRequestsPerSecond() float64 {
	return c.getRatePerSecond(&c.requestsInWindow)
}

// GetErrorsPerSecond returns the current errors per second rate.
func (c *Collector) GetErrorsPerSecond() float64 {
	return c.getRatePerSecond(&c.errorsInWindow)
}

// getRatePerSecond calculates rate per second with window rotation.
func (c *Collector) getRatePerSecond(counter *atomic.Int64) float64 {
	windowDuration := 10 * time.Second
	now := time.Now().UnixNano()
	windowStart := c.windowStart.Load()

	elapsed := time.Duration(now - windowStart)
	if elapsed >= windowDuration {
		if c.windowStart.CompareAndSwap(windowStart, now) {
			c.requestsInWindow.Store(0)
			c.errorsInWindow.Store(0)
		}
		return 0
	}

	if elapsed <= 0 {
		return 0
	}
	return float64(counter.Load()) / elapsed.Seconds()
}

// GetAverageResponseTime returns the average response time.
func (c *Collector) GetAverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	c.startMu.RLock()
	start := c.startTime
	c.startMu.RUnlock()

	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(start),
		RequestsTotal:       c.requestsTotal.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
		TimeoutsTotal:       c.timeoutsTotal.Load(),
		HealthChecks:        c.healthTotal.Load(),
		HealthFailures:      c.healthFailures.Load(),
		LedgerRecords:       c.ledgerRecords.Load(),
		BytesTotal:          c.bytesTotal.Load(),
		InFlight:            c.inFlight.Load(),
		Endpoints:           c.endpoints.Load(),
		RequestsPerSecond:   c.GetRequestsPerSecond(),
		ErrorsPerSecond:     c.GetErrorsPerSecond(),
		AverageResponseTime: c.GetAverageResponseTime(),
		ErrorCounts:         snapshotCounts(&c.errorMu, &c.errorCounts),
		RequestsByType:      snapshotCounts(&c.typeMu, &c.typeCounts),
		StatusCodes:         make(map[int]int64),
		ResponseTimeHist:    make([]int64, 10),
	}

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := 0; i < 10; i++ {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Reset resets all metrics.
func (c *Collector) Reset() {
	for _, v := range []*atomic.Int64{
		&c.requestsTotal, &c.errorsTotal, &c.timeoutsTotal, &c.healthTotal,
		&c.healthFailures, &c.ledgerRecords, &c.bytesTotal, &c.requestsInWindow,
		&c.errorsInWindow, &c.responseTimesSum, &c.responseTimesNum, &c.inFlight,
		&c.endpoints,
	} {
		v.Store(0)
	}

	for i := 0; i < 10; i++ {
		c.responseTimeBuckets[i].Store(0)
	}

	c.errorMu.Lock()
	c.errorCounts = make(map[string]*atomic.Int64)
	c.errorMu.Unlock()

	c.typeMu.Lock()
	c.typeCounts = make(map[string]*atomic.Int64)
	c.typeMu.Unlock()

	c.statusMu.Lock()
	c.statusCodes = make(map[int]*atomic.Int64)
	c.statusMu.Unlock()

	c.windowStart.Store(time.Now().UnixNano())
	c.startMu.Lock()
	c.startTime = time.Now()
	c.startMu.Unlock()
}

// incr bumps (*m)[key]. The map pointer is read under mu since Reset swaps it.
func incr(mu *sync.RWMutex, m *map[string]*atomic.Int64, key string) {
	if key == "" {
		return
	}
	mu.RLock()
	v := (*m)[key]
	mu.RUnlock()
	if v == nil {
		mu.Lock()
		if v = (*m)[key]; v == nil {
			v = &atomic.Int64{}
			(*m)[key] = v
		}
		mu.Unlock()
	}
	v.Add(1)
}

func snapshotCounts(mu *sync.RWMutex, m *map[string]*atomic.Int64) map[string]int64 {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]int64, len(*m))
	for k, v := range *m {
		out[k] = v.Load()
	}
	return out
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp" yaml:"timestamp"`
	Uptime              time.Duration    `json:"uptime" yaml:"uptime"`
	RequestsTotal       int64            `json:"requests_total" yaml:"requests_total"`
	ErrorsTotal         int64            `json:"errors_total" yaml:"errors_total"`
	TimeoutsTotal       int64            `json:"timeouts_total" yaml:"timeouts_total"`
	HealthChecks        int64            `json:"health_checks" yaml:"health_checks"`
	HealthFailures      int64            `json:"health_failures" yaml:"health_failures"`
	LedgerRecords       int64            `json:"ledger_records" yaml:"ledger_records"`
	BytesTotal          int64            `json:"bytes_total" yaml:"bytes_total"`
	InFlight            int64            `json:"in_flight" yaml:"in_flight"`
	Endpoints           int64            `json:"endpoints" yaml:"endpoints"`
	RequestsPerSecond   float64          `json:"requests_per_second" yaml:"requests_per_second"`
	ErrorsPerSecond     float64          `json:"errors_per_second" yaml:"errors_per_second"`
	AverageResponseTime time.Duration    `json:"average_response_time" yaml:"average_response_time"`
	ErrorCounts         map[string]int64 `json:"error_counts" yaml:"error_counts"`
	RequestsByType      map[string]int64 `json:"requests_by_type" yaml:"requests_by_type"`
	StatusCodes         map[int]int64    `json:"status_codes" yaml:"status_codes"`
	ResponseTimeHist    []int64          `json:"response_time_histogram" yaml:"response_time_histogram"`
}

// ErrorRate returns the error rate (errors/requests).
func (s *Snapshot) ErrorRate() float64 {
	if s.RequestsTotal == 0 {
		return 0
	}
	return float64(s.ErrorsTotal) / float64(s.RequestsTotal)
}

// HealthFailureRate returns the fraction of failed connection tests.
func (s *Snapshot) HealthFailureRate() float64 {
	if s.HealthChecks == 0 {
		return 0
	}
	return float64(s.HealthFailures) / float64(s.HealthChecks)
}

// Summary returns a human-readable summary.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"requests_total":       s.RequestsTotal,
		"errors_total":         s.ErrorsTotal,
		"error_rate":           s.ErrorRate(),
		"timeouts_total":       s.TimeoutsTotal,
		"health_checks":        s.HealthChecks,
		"health_failure_rate":  s.HealthFailureRate(),
		"ledger_records":       s.LedgerRecords,
		"in_flight":            s.InFlight,
		"endpoints":            s.Endpoints,
		"requests_per_second":  s.RequestsPerSecond,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
	}
}

// Global metrics collector.
var globalCollector = New()

// SetGlobal sets the global metrics collector.
func SetGlobal(c *Collector) {
	globalCollector = c
}

// Global returns the global metrics collector.
func Global() *Collector {
	return globalCollector
}
