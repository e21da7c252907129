package download

import (
	"errors"
	"time"
)

// PartialSuffix marks an in-progress download artifact. Files carrying
// this suffix are never served as models and are swept at startup.
const PartialSuffix = ".download"

// State is the lifecycle state of a download job.
type State string

// Download job states.
const (
	StateStarting    State = "starting"
	StateDownloading State = "downloading"
	StatePaused      State = "paused"
	StateExtracting  State = "extracting"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Common errors.
var (
	// ErrNotFound is returned for control operations on unknown job ids.
	ErrNotFound = errors.New("download: job not found")

	// ErrConflict is returned when an operation does not apply to the
	// job's current state, e.g. pausing a job that is not downloading.
	ErrConflict = errors.New("download: operation conflicts with job state")
)

// Spec describes a download request.
type Spec struct {
	// BaseURL is the direct file URL (single-file) or the base URL that
	// entries of Files are joined onto (multi-file).
	BaseURL string

	// DestinationDir is the directory files are downloaded into.
	DestinationDir string

	// Subfolder, when non-empty, is created under DestinationDir and
	// used as the effective destination.
	Subfolder string

	// Files lists the files to download relative to BaseURL. When empty
	// the filename is derived from the BaseURL path.
	Files []string

	// Headers holds custom request headers. When nil, a default
	// User-Agent is sent.
	Headers map[string]string

	// AutoExtract extracts downloaded zip archives and deletes the
	// archive on success.
	AutoExtract bool
}

// Status is the mutable record of one download job. Control-plane
// callers receive copies; only the owning worker and the table mutate
// the live record.
type Status struct {
	ID          string `json:"id"`
	State       State  `json:"state"`
	SourceURL   string `json:"source_url"`
	Destination string `json:"destination"`

	Files          []string `json:"files"`
	TotalFiles     int      `json:"total_files"`
	FilesCompleted int      `json:"files_completed"`
	CurrentFile    string   `json:"current_file"`

	// Progress is the overall progress across all files, 0..100.
	Progress int `json:"progress"`

	// DownloadedBytes and TotalBytes describe the file in flight.
	DownloadedBytes int64 `json:"downloaded_bytes"`
	TotalBytes      int64 `json:"total_bytes"`

	// Speed is the instantaneous transfer speed in bytes per second.
	Speed float64 `json:"speed"`

	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
	TotalPausedTime time.Duration `json:"total_paused_time"`

	// PauseStartTime is set while the job is paused, zero otherwise.
	PauseStartTime time.Time `json:"pause_start_time,omitempty"`

	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ExtractionProgress is the payload of extraction-progress events.
type ExtractionProgress struct {
	DownloadID     string `json:"download_id"`
	Progress       int    `json:"extraction_progress"`
	TotalFiles     int    `json:"extraction_total_files"`
	CompletedFiles int    `json:"extraction_completed_files"`
	CurrentFile    string `json:"current_extracting_file"`
}
