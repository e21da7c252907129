package process

import (
	"errors"
	"time"
)

// State is the lifecycle state of a supervised process.
type State string

// Process states.
const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// ErrNotFound is returned when reading output of an unknown process id.
var ErrNotFound = errors.New("process: not found")

// Info is a point-in-time snapshot of a supervised process.
type Info struct {
	ID        string    `json:"id"`
	ModelName string    `json:"model_name"`
	ModelPath string    `json:"model_path"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartTime time.Time `json:"start_time"`
	Message   string    `json:"message,omitempty"`
}
