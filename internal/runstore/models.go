package runstore

import "time"

// RunStatus tracks a backup run's lifecycle in the store.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one invocation of the backup pipeline.
type Run struct {
	ID           string
	Basename     string
	Invocation   string
	Status       RunStatus
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Sets         int
	Discs        int
}

// SetRecord mirrors a redundancy set's progress through the run.
type SetRecord struct {
	RunID     string
	SetIndex  int
	State     string
	Members   []string
	Error     string
	UpdatedAt time.Time
}

// BundleRecord is one burned (or planned) disc.
type BundleRecord struct {
	RunID      string
	DiscIndex  int
	SetIndex   int
	DiscInSet  int
	Label      string
	Bytes      int64
	PureParity bool
	Files      []string
	BurnedAt   time.Time
}
