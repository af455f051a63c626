package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the collection-job lifecycle state
// pending → running → {completed, failed, cancelled}, 역방향 전이 없음
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further mutation is permitted
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransition reports whether s → next moves the lifecycle forward
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning || next.IsTerminal()
	case JobRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// CollectionType selects which external collaborator a unit calls
// ⭐ SSOT: 수집 유형은 여기서만 정의
type CollectionType string

const (
	TypeTargetPrice CollectionType = "target_price"
	TypePerformance CollectionType = "performance"
	TypeSNS         CollectionType = "sns"
	TypeMedia       CollectionType = "media"
)

// AllCollectionTypes returns every type in dispatch order
func AllCollectionTypes() []CollectionType {
	return []CollectionType{TypeTargetPrice, TypePerformance, TypeSNS, TypeMedia}
}

// Valid reports whether t is a known type
func (t CollectionType) Valid() bool {
	switch t {
	case TypeTargetPrice, TypePerformance, TypeSNS, TypeMedia:
		return true
	}
	return false
}

// ParseCollectionTypes validates and de-duplicates raw labels, keeping input order
func ParseCollectionTypes(raw []string) ([]CollectionType, error) {
	if len(raw) == 0 {
		return nil, NewValidationError("collection_types", "at least one collection type is required")
	}

	seen := make(map[CollectionType]bool, len(raw))
	types := make([]CollectionType, 0, len(raw))
	for _, r := range raw {
		t := CollectionType(r)
		if !t.Valid() {
			return nil, NewValidationError("collection_types", fmt.Sprintf("unknown collection type %q", r))
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	return types, nil
}

// TypeProgress holds the per-type unit counters
// 불변식: Completed + Failed <= Total
type TypeProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Resolved is the number of units that reported back
func (p TypeProgress) Resolved() int {
	return p.Completed + p.Failed
}

// Done reports whether every registered unit resolved
// total = 0이면 아직 dispatch 전이므로 완료 아님
func (p TypeProgress) Done() bool {
	return p.Total > 0 && p.Resolved() == p.Total
}

// CollectionJob is one logical multi-type gathering run for an analyst
type CollectionJob struct {
	ID                    string                          `json:"id"`
	AnalystID             string                          `json:"analyst_id"`
	Types                 []CollectionType                `json:"collection_types"`
	StartDate             time.Time                       `json:"start_date"`
	EndDate               time.Time                       `json:"end_date"`
	Status                JobStatus                       `json:"status"`
	Progress              map[CollectionType]TypeProgress `json:"progress"`
	OverallProgress       float64                         `json:"overall_progress"`
	Version               int64                           `json:"-"`
	ErrorMessage          string                          `json:"error_message,omitempty"`
	EstimatedCompletionAt time.Time                       `json:"estimated_completion_at"`
	CreatedAt             time.Time                       `json:"created_at"`
	StartedAt             *time.Time                      `json:"started_at,omitempty"`
	CompletedAt           *time.Time                      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job is frozen
func (j *CollectionJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// ComputeProgress returns 100 × Σcompleted / Σtotal over declared types
func (j *CollectionJob) ComputeProgress() float64 {
	var total, completed int
	for _, t := range j.Types {
		p := j.Progress[t]
		total += p.Total
		completed += p.Completed
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(completed) / float64(total)
}

// IsUnitComplete reports whether every declared type has total > 0 and is fully resolved
func (j *CollectionJob) IsUnitComplete() bool {
	if len(j.Types) == 0 {
		return false
	}
	for _, t := range j.Types {
		if !j.Progress[t].Done() {
			return false
		}
	}
	return true
}

// FailedUnits sums failed counters across types
func (j *CollectionJob) FailedUnits() int {
	n := 0
	for _, p := range j.Progress {
		n += p.Failed
	}
	return n
}

// Clone deep-copies the job so stores never share maps with callers
func (j *CollectionJob) Clone() *CollectionJob {
	c := *j
	c.Types = append([]CollectionType(nil), j.Types...)
	c.Progress = make(map[CollectionType]TypeProgress, len(j.Progress))
	for k, v := range j.Progress {
		c.Progress[k] = v
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Target is one covered company a unit collects about
type Target struct {
	AnalystName string `json:"analyst_name"`
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	Ticker      string `json:"ticker"`
	Sector      string `json:"sector"`
}

// Unit is one (job, type, target) piece of work
type Unit struct {
	JobID     string
	AnalystID string
	Type      CollectionType
	Target    Target
	StartDate time.Time
	EndDate   time.Time
}

// UnitOutcome is the resolved state of a unit
type UnitOutcome string

const (
	UnitSuccess UnitOutcome = "success"
	UnitFailed  UnitOutcome = "failed"
)

// UnitResult is the audit record of one resolved unit
// Progress Tracker에 정확히 한 번 반영됨
type UnitResult struct {
	ID        int64           `json:"id"`
	JobID     string          `json:"job_id"`
	AnalystID string          `json:"analyst_id"`
	Type      CollectionType  `json:"collection_type"`
	TargetID  string          `json:"target_id"`
	Outcome   UnitOutcome     `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Items     int             `json:"items"`
	Error     string          `json:"error_message,omitempty"`
	Duration  time.Duration   `json:"duration"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}

// SignalCounts aggregates successful sns/media collection for one analyst+company
type SignalCounts struct {
	SNSItems   int
	MediaItems int
	Collected  bool // 해당 기간에 sns/media 수집 이력이 있는지
}
