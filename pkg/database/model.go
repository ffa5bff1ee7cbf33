package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobResult represents a record in the public.experiment_results table
type JobResult struct {
	ID         int       `gorm:"primaryKey;column:id"`
	RunID      string    `gorm:"column:run_id;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;default:now()"`
	Target     string    `gorm:"column:target;not null"`
	Fuzzer     string    `gorm:"column:fuzzer;not null"`
	Trial      int       `gorm:"column:trial;not null"`
	RNGSeed    int       `gorm:"column:rng_seed"`
	State      string    `gorm:"column:state;not null"`
	ExitStatus int       `gorm:"column:exit_status"`
	CPU        int       `gorm:"column:cpu"`
	GPU        *int      `gorm:"column:gpu"`
	CrashCount int       `gorm:"column:crash_count"`
	LogPath    string    `gorm:"column:log_path"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
	Metric     Metric    `gorm:"column:metric;type:jsonb"`
}

func (JobResult) TableName() string {
	return "experiment_results"
}

// Metric holds the parsed fuzzer_stats of a trial
type Metric map[string]any

// Value implements the driver.Valuer interface for the Metric type
func (m Metric) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for the Metric type
func (m *Metric) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, &m)
}
