package session

import (
	"fmt"
	"time"

	"scribe/format"
)

type State int

const (
	StateIdle State = iota
	StatePermissionPending
	StateStarting
	StateRecording
	StateStopping
	StateError
)

var stateNames = [...]string{"idle", "permission_pending", "starting", "recording", "stopping", "error"}

func (s State) String() string {
	if s < StateIdle || s > StateError {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Active reports whether a recording is in progress or being set up.
func (s State) Active() bool {
	return s == StatePermissionPending || s == StateStarting || s == StateRecording || s == StateStopping
}

type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusRecording
	StatusSuccess
	StatusWarning
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusInfo:
		return "info"
	case StatusRecording:
		return "recording"
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// Status is the one-line message shown on the panel's status card.
// Guidance, when set, tells the user how to fix the problem.
type Status struct {
	Kind     StatusKind
	Text     string
	Guidance string
}

var readyStatus = Status{Kind: StatusInfo, Text: "Ready to record"}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State     State
	Text      string // what the editor shows
	Final     string // finalized transcript, including text present before recording
	Interim   string
	Language  string
	Level     format.Level
	StartedAt time.Time
	Elapsed   time.Duration
	Status    Status
	LastError *Error
}
