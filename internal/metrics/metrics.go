package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	Runs              int64
	Published         int64
	Skipped           int64
	Failed            int64
	SummaryFallbacks  int64
	SourceFailures    int64
	ChatFailures      int64
	CandidatesFetched int64

	// Timings
	LastRunDuration time.Duration

	// Status
	LastRunTime   time.Time
	LastOutcome   string
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementSummaryFallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummaryFallbacks++
}

func (m *Metrics) AddSourceFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourceFailures += int64(n)
}

func (m *Metrics) AddCandidatesFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesFetched += int64(n)
}

func (m *Metrics) IncrementChatFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatFailures++
}

// RecordRun counts one finished run by its outcome ("done", "skipped",
// "failed").
func (m *Metrics) RecordRun(outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Runs++
	switch outcome {
	case "done":
		m.Published++
	case "skipped":
		m.Skipped++
	case "failed":
		m.Failed++
	}
	m.LastOutcome = outcome
	m.LastRunDuration = duration
	m.LastRunTime = time.Now()
	if outcome != "failed" {
		m.IsHealthy = true
	}
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"runs":                 m.Runs,
		"published":            m.Published,
		"skipped":              m.Skipped,
		"failed":               m.Failed,
		"summary_fallbacks":    m.SummaryFallbacks,
		"source_failures":      m.SourceFailures,
		"chat_failures":        m.ChatFailures,
		"candidates_fetched":   m.CandidatesFetched,
		"last_run_duration_ms": m.LastRunDuration.Milliseconds(),
		"last_run_time":        m.LastRunTime.Format(time.RFC3339),
		"last_outcome":         m.LastOutcome,
		"last_error_time":      m.LastErrorTime.Format(time.RFC3339),
		"last_error":           m.LastError,
		"is_healthy":           m.IsHealthy,
	}
}
