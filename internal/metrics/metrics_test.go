package metrics

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("New() returned nil")
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	c := New()

	c.RecordRequest("eapi")
	c.RecordRequest("eapi")
	c.RecordRequest("cloudvision")

	snap := c.Snapshot()
	if snap.RequestsTotal != 3 {
		t.Errorf("RequestsTotal = %d, want 3", snap.RequestsTotal)
	}
	if snap.RequestsByType["eapi"] != 2 {
		t.Errorf("RequestsByType[eapi] = %d, want 2", snap.RequestsByType["eapi"])
	}
	if snap.RequestsByType["cloudvision"] != 1 {
		t.Errorf("RequestsByType[cloudvision] = %d, want 1", snap.RequestsByType["cloudvision"])
	}
}

func TestCollector_RecordError(t *testing.T) {
	c := New()

	c.RecordError("transport")
	c.RecordError("transport")
	c.RecordError("timeout")

	snap := c.Snapshot()
	if snap.ErrorsTotal != 3 {
		t.Errorf("ErrorsTotal = %d, want 3", snap.ErrorsTotal)
	}
	if snap.ErrorCounts["transport"] != 2 {
		t.Errorf("ErrorCounts[transport] = %d, want 2", snap.ErrorCounts["transport"])
	}
	if snap.TimeoutsTotal != 1 {
		t.Errorf("TimeoutsTotal = %d, want 1", snap.TimeoutsTotal)
	}
}

func TestCollector_RecordDispatch(t *testing.T) {
	c := New()

	c.RecordDispatch("eapi", 200, 20*time.Millisecond, "")
	c.RecordDispatch("eos_rest", 404, 30*time.Millisecond, "protocol")
	c.RecordDispatch("eapi", 0, 5*time.Second, "timeout")

	snap := c.Snapshot()
	if snap.RequestsTotal != 3 || snap.ErrorsTotal != 2 {
		t.Errorf("requests/errors = %d/%d, want 3/2", snap.RequestsTotal, snap.ErrorsTotal)
	}
	if snap.StatusCodes[200] != 1 || snap.StatusCodes[404] != 1 {
		t.Errorf("StatusCodes = %v", snap.StatusCodes)
	}
	if _, ok := snap.StatusCodes[0]; ok {
		t.Error("status 0 should not be recorded")
	}
	if snap.ResponseTimeHist[1] != 2 || snap.ResponseTimeHist[8] != 1 {
		t.Errorf("ResponseTimeHist = %v", snap.ResponseTimeHist)
	}
}

func TestCollector_RecordResponseTime(t *testing.T) {
	c := New()

	c.RecordResponseTime(100 * time.Millisecond)
	c.RecordResponseTime(200 * time.Millisecond)
	c.RecordResponseTime(300 * time.Millisecond)

	snap := c.Snapshot()
	avgMs := snap.AverageResponseTime.Milliseconds()
	if avgMs != 200 {
		t.Errorf("AverageResponseTime = %dms, want 200ms", avgMs)
	}
}

func TestCollector_RecordResponseTime_Buckets(t *testing.T) {
	c := New()

	c.RecordResponseTime(5 * time.Millisecond)     // bucket 0 (<10)
	c.RecordResponseTime(30 * time.Millisecond)    // bucket 1 (<50)
	c.RecordResponseTime(75 * time.Millisecond)    // bucket 2 (<100)
	c.RecordResponseTime(150 * time.Millisecond)   // bucket 3 (<250)
	c.RecordResponseTime(400 * time.Millisecond)   // bucket 4 (<500)
	c.RecordResponseTime(750 * time.Millisecond)   // bucket 5 (<1000)
	c.RecordResponseTime(2000 * time.Millisecond)  // bucket 6 (<2500)
	c.RecordResponseTime(4000 * time.Millisecond)  // bucket 7 (<5000)
	c.RecordResponseTime(8000 * time.Millisecond)  // bucket 8 (<10000)
	c.RecordResponseTime(15000 * time.Millisecond) // bucket 9 (>=10000)

	snap := c.Snapshot()
	for i := 0; i < 10; i++ {
		if snap.ResponseTimeHist[i] != 1 {
			t.Errorf("ResponseTimeHist[%d] = %d, want 1", i, snap.ResponseTimeHist[i])
		}
	}
}

func TestCollector_RecordHealthCheck(t *testing.T) {
	c := New()

	c.RecordHealthCheck(true)
	c.RecordHealthCheck(false)
	c.RecordHealthCheck(false)

	snap := c.Snapshot()
	if snap.HealthChecks != 3 || snap.HealthFailures != 2 {
		t.Errorf("health = %d/%d, want 2 failures of 3", snap.HealthFailures, snap.HealthChecks)
	}
}

func TestCollector_Gauges(t *testing.T) {
	c := New()

	c.AddInFlight(3)
	c.AddInFlight(-1)
	c.SetEndpoints(7)
	c.RecordLedgerAppend()
	c.RecordBytes(1024)

	snap := c.Snapshot()
	if snap.InFlight != 2 {
		t.Errorf("InFlight = %d, want 2", snap.InFlight)
	}
	if snap.Endpoints != 7 {
		t.Errorf("Endpoints = %d, want 7", snap.Endpoints)
	}
	if snap.LedgerRecords != 1 || snap.BytesTotal != 1024 {
		t.Errorf("LedgerRecords = %d, BytesTotal = %d", snap.LedgerRecords, snap.BytesTotal)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := New()

	c.RecordRequest("eapi")
	c.RecordError("transport")
	c.RecordHealthCheck(false)
	c.AddInFlight(4)

	c.Reset()

	snap := c.Snapshot()
	if snap.RequestsTotal != 0 {
		t.Errorf("RequestsTotal after reset = %d, want 0", snap.RequestsTotal)
	}
	if snap.ErrorsTotal != 0 {
		t.Errorf("ErrorsTotal after reset = %d, want 0", snap.ErrorsTotal)
	}
	if snap.HealthChecks != 0 || snap.InFlight != 0 {
		t.Errorf("health/in-flight after reset = %d/%d", snap.HealthChecks, snap.InFlight)
	}
	if len(snap.RequestsByType) != 0 || len(snap.ErrorCounts) != 0 {
		t.Error("breakdowns should be empty after reset")
	}
}

func TestCollector_GetAverageResponseTime_Empty(t *testing.T) {
	c := New()

	avg := c.GetAverageResponseTime()
	if avg != 0 {
		t.Errorf("AverageResponseTime with no data = %v, want 0", avg)
	}
}

func TestSnapshot_ErrorRate(t *testing.T) {
	tests := []struct {
		name     string
		requests int64
		errors   int64
		want     float64
	}{
		{"no requests", 0, 0, 0},
		{"no errors", 100, 0, 0},
		{"50% errors", 100, 50, 0.5},
		{"all errors", 100, 100, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Snapshot{
				RequestsTotal: tt.requests,
				ErrorsTotal:   tt.errors,
			}
			if got := s.ErrorRate(); got != tt.want {
				t.Errorf("ErrorRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshot_HealthFailureRate(t *testing.T) {
	tests := []struct {
		name     string
		checks   int64
		failures int64
		want     float64
	}{
		{"never tested", 0, 0, 0},
		{"all passing", 4, 0, 0},
		{"quarter failing", 4, 1, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Snapshot{HealthChecks: tt.checks, HealthFailures: tt.failures}
			if got := s.HealthFailureRate(); got != tt.want {
				t.Errorf("HealthFailureRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshot_Summary(t *testing.T) {
	s := &Snapshot{
		Uptime:              10 * time.Second,
		RequestsTotal:       1000,
		ErrorsTotal:         50,
		LedgerRecords:       1000,
		Endpoints:           4,
		RequestsPerSecond:   100,
		AverageResponseTime: 200 * time.Millisecond,
	}

	summary := s.Summary()

	if summary["requests_total"] != int64(1000) {
		t.Errorf("summary[requests_total] = %v, want 1000", summary["requests_total"])
	}
	if summary["error_rate"] != 0.05 {
		t.Errorf("summary[error_rate] = %v, want 0.05", summary["error_rate"])
	}
	if summary["avg_response_time_ms"] != int64(200) {
		t.Errorf("summary[avg_response_time_ms] = %v, want 200", summary["avg_response_time_ms"])
	}
}

func TestGlobal(t *testing.T) {
	c := Global()
	if c == nil {
		t.Fatal("Global() returned nil")
	}
}

func TestSetGlobal(t *testing.T) {
	original := Global()
	defer SetGlobal(original)

	newCollector := New()
	SetGlobal(newCollector)

	if Global() != newCollector {
		t.Error("SetGlobal() did not set the global collector")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.RecordDispatch("eapi", 200, time.Millisecond, "transport")
				c.RecordHealthCheck(j%2 == 0)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	snap := c.Snapshot()
	if snap.RequestsTotal != 1000 {
		t.Errorf("RequestsTotal = %d, want 1000", snap.RequestsTotal)
	}
	if snap.ErrorCounts["transport"] != 1000 {
		t.Errorf("ErrorCounts[transport] = %d, want 1000", snap.ErrorCounts["transport"])
	}
	if snap.RequestsByType["eapi"] != 1000 {
		t.Errorf("RequestsByType[eapi] = %d, want 1000", snap.RequestsByType["eapi"])
	}
	if snap.HealthFailures != 500 {
		t.Errorf("HealthFailures = %d, want 500", snap.HealthFailures)
	}
}

func TestSnapshot_Uptime(t *testing.T) {
	c := New()
	time.Sleep(10 * time.Millisecond)
	snap := c.Snapshot()

	if snap.Uptime < 10*time.Millisecond {
		t.Errorf("Uptime = %v, should be >= 10ms", snap.Uptime)
	}
}
