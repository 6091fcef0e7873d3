package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of an async job.
// Values include JobStatusPending, JobStatusInProgress, JobStatusCompleted,
// JobStatusFailed, and JobStatusTimeout.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusTimeout    JobStatus = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout:
		return true
	}
	return false
}

// JobKind distinguishes what kind of work a job performs.
type JobKind string

const (
	JobKindFetch  JobKind = "fetch"
	JobKindImport JobKind = "import"
)

// Counter keys written by the orchestrators.
const (
	CounterRecordsFetched = "records_fetched"
	CounterRowsProcessed  = "rows_processed"
	CounterRowsAdded      = "rows_added"
	CounterRowsSkipped    = "rows_skipped"
)

// StringArray is a custom type for storing string slices as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// CounterMap stores named integer counters as JSON in the database.
type CounterMap map[string]int64

// Value implements the driver.Valuer interface for database serialization.
func (m CounterMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *CounterMap) Scan(value interface{}) error {
	if value == nil {
		*m = CounterMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan CounterMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// MetaMap stores free-form string metadata as JSON in the database.
type MetaMap map[string]string

// Value implements the driver.Valuer interface for database serialization.
func (m MetaMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *MetaMap) Scan(value interface{}) error {
	if value == nil {
		*m = MetaMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan MetaMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// JobRecord tracks one asynchronous operation from creation to a terminal state.
// Progress is 0-100 and never decreases while the job is live; Errors is
// append-only.
type JobRecord struct {
	ID          string      `gorm:"type:text;primaryKey" json:"job_id"`
	Kind        JobKind     `gorm:"type:text;not null;index:idx_jobs_kind" json:"job_type"`
	Status      JobStatus   `gorm:"type:text;default:pending;index:idx_jobs_status" json:"status"`
	Progress    float64     `gorm:"default:0" json:"progress"`
	Counters    CounterMap  `gorm:"type:text" json:"counters"`
	Errors      StringArray `gorm:"type:text" json:"errors"`
	Metadata    MetaMap     `gorm:"type:text" json:"metadata"`
	StartedAt   time.Time   `gorm:"index:idx_jobs_started" json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"-"`
	UpdatedAt   time.Time   `json:"-"`
}

// TableName returns the database table name for JobRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (JobRecord) TableName() string {
	return "jobs"
}

// Clone returns a deep copy safe to hand across goroutines.
func (j JobRecord) Clone() JobRecord {
	out := j
	if j.Counters != nil {
		out.Counters = make(CounterMap, len(j.Counters))
		for k, v := range j.Counters {
			out.Counters[k] = v
		}
	}
	if j.Errors != nil {
		out.Errors = append(StringArray(nil), j.Errors...)
	}
	if j.Metadata != nil {
		out.Metadata = make(MetaMap, len(j.Metadata))
		for k, v := range j.Metadata {
			out.Metadata[k] = v
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
