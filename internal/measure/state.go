package measure

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle phase of a run.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateCancelled    State = "cancelled"
	StateFailed       State = "failed"
	StateTeardown     State = "teardown"
	StateDone         State = "done"
)

// Terminal reports whether s is an outcome rather than a phase.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Result is the outcome of one run.
type Result struct {
	ID     uuid.UUID
	Script string
	// DataPath is the recorded data file.
	DataPath string
	// State is StateCompleted, StateCancelled or StateFailed.
	State State
	// Err is the error that failed the run.
	Err error
	// StopReason says why a cancelled run stopped.
	StopReason string
	// Steps counts started steps; Rows counts recorded rows.
	Steps    int
	Rows     int
	Total    int
	Started  time.Time
	Finished time.Time
	// Alarms counts the steps on which each alarm triggered.
	Alarms map[string]int
	// TeardownErrs holds every failure met while shutting down.
	TeardownErrs []error
}

// AlarmStatus is the latest evaluation of one alarm.
type AlarmStatus struct {
	Name      string  `json:"name"`
	Severity  string  `json:"severity"`
	Triggered bool    `json:"triggered"`
	Value     float64 `json:"value"`
}

// Status is a snapshot of the runner for monitoring.
type Status struct {
	ID       string        `json:"id,omitempty"`
	Script   string        `json:"script"`
	State    State         `json:"state"`
	Step     int           `json:"step"`
	Total    int           `json:"total"`
	DataPath string        `json:"data_path,omitempty"`
	Started  *time.Time    `json:"started_at,omitempty"`
	Error    string        `json:"error,omitempty"`
	Alarms   []AlarmStatus `json:"alarms,omitempty"`
}
