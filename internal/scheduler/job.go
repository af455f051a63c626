package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (with seconds)
	// Examples: "0 0 2 * * *" (every day at 2 AM)
	//           "@daily", "@every 1m"
	Schedule() string
}

// JobResult is the outcome of one scheduled run, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// maxHistory bounds per-job results kept in memory
const maxHistory = 100

// JobHistory is a bounded ring of recent results, oldest first
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, dropping the oldest beyond maxHistory
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if over := len(h.Results) - maxHistory; over > 0 {
		h.Results = append([]JobResult(nil), h.Results[over:]...)
	}
}

// GetLatestResults returns up to n most recent results, oldest first
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return nil
	}
	return h.Results[len(h.Results)-n:]
}

// summarize folds the history into run counters and last-seen timestamps
func (h *JobHistory) summarize(stats *JobStats) {
	for i := range h.Results {
		r := &h.Results[i]
		start := r.StartTime
		stats.TotalRuns++
		stats.LastRun = &start
		if r.Success {
			stats.SuccessCount++
			stats.LastSuccess = &start
		} else {
			stats.FailureCount++
			stats.LastFailure = &start
		}
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalRuns)
	}
}
