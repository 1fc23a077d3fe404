package ledger

import "time"

// RunState is the lifecycle state of a training run.
type RunState string

const (
	StateRunning               RunState = "running"
	StateConverged             RunState = "converged"
	StateTimeExceeded          RunState = "time_exceeded"
	StateIterationLimitReached RunState = "iteration_limit_reached"
	StateCancelled             RunState = "cancelled"
	StateFailed                RunState = "failed"
	// StateInterrupted marks a run left in running state by a process that
	// exited without recording a terminal state.
	StateInterrupted RunState = "interrupted"
)

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	return s != StateRunning && s != ""
}

// Completed reports whether the run ended by reaching one of its bounds.
func (s RunState) Completed() bool {
	switch s {
	case StateConverged, StateTimeExceeded, StateIterationLimitReached:
		return true
	default:
		return false
	}
}

// Run is one invocation of the train stage.
type Run struct {
	ID             string
	Experiment     string
	Partition      string
	Model          string
	State          RunState
	StartIteration int
	Iterations     int
	FinalLoss      *float64
	Elapsed        time.Duration
	ErrorMessage   string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// RunResult is the terminal information recorded by FinishRun.
type RunResult struct {
	State        RunState
	Iterations   int
	FinalLoss    *float64
	Elapsed      time.Duration
	ErrorMessage string
}

// Snapshot is a parameter snapshot written during a run.
type Snapshot struct {
	Epoch     int
	RunID     string
	Path      string
	TrainLoss *float64
	CreatedAt time.Time
}

// Selection is the outcome of one model_selection pass.
type Selection struct {
	ID                 int64
	Epoch              int
	Criterion          string
	ValidationLoss     float64
	ValidationAccuracy float64
	Candidates         int
	CreatedAt          time.Time
}

// Artifact kinds.
const (
	ArtifactPredictions = "predictions"
	ArtifactAnalysis    = "analysis"
)

// Artifact is a predictions or analysis file keyed by snapshot id.
type Artifact struct {
	Kind       string
	SnapshotID string
	Path       string
	CreatedAt  time.Time
}
