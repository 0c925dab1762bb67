package history

import "time"

// Status represents the lifecycle of a run or segment in the ledger.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusSkipped   Status = "skipped"
)

// RunRecord is the persisted summary of one pipeline run.
type RunRecord struct {
	ID                string
	InputPath         string
	OutputPath        string
	VideoFormat       string
	Parallel          int
	Scale             float64
	Adjust            int
	FullArtifact      string
	PartitionArtifact string
	Status            Status
	ErrorMessage      string
	AudioAttached     bool
	SubtitleAttached  bool
	StartedAt         time.Time
	FinishedAt        time.Time
	Elapsed           time.Duration
}

// Finished reports whether the run reached a terminal status.
func (r RunRecord) Finished() bool {
	return r.Status != StatusRunning && r.Status != ""
}

// SegmentRecord is the persisted outcome of one worker process.
type SegmentRecord struct {
	RunID        string
	Index        int
	Status       Status
	ExitCode     int
	Duration     time.Duration
	LogPath      string
	ErrorMessage string
}

// Completion carries the terminal fields written by FinishRun.
type Completion struct {
	Status            Status
	Err               error
	FullArtifact      string
	PartitionArtifact string
	VideoFormat       string
	AudioAttached     bool
	SubtitleAttached  bool
	FinishedAt        time.Time
}
