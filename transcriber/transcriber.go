// Package transcriber is the speech recognition capability: a recognition is
// a restartable stream that reports start, cumulative results, errors and
// end as events.
package transcriber

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a recognition error event.
type ErrorCode string

const (
	ErrNoSpeech     ErrorCode = "no-speech"
	ErrNotAllowed   ErrorCode = "not-allowed"
	ErrNetwork      ErrorCode = "network"
	ErrAudioCapture ErrorCode = "audio-capture"
	ErrAborted      ErrorCode = "aborted"
)

var (
	ErrAlreadyStarted = errors.New("recognition already started")
	ErrClosed         = errors.New("recognition closed")
)

type EventKind int

const (
	EventStart EventKind = iota
	EventResult
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

type Result struct {
	Transcript string
	IsFinal    bool
	Confidence float64
}

// Event is one notification from a running recognition. For EventResult,
// Results holds every result of the current run and ResultIndex is the
// first entry that changed since the previous event.
type Event struct {
	Kind        EventKind
	ResultIndex int
	Results     []Result
	Code        ErrorCode
	Message     string
}

type Config struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Recognition is a single recognizer instance. Start may be called again
// after an EventEnd. Close releases everything and closes Events.
type Recognition interface {
	Start() error
	Stop()
	Events() <-chan Event
	Close() error
}

type Recognizer interface {
	Name() string
	NewRecognition(cfg Config) (Recognition, error)
}

// resultList accumulates results the way a continuous recognizer reports
// them: a trailing interim result is replaced by the next update, a final
// result is kept and the next update starts a new entry.
type resultList struct {
	items []Result
}

// apply records an update and returns the index of the first changed entry
// together with a copy of the whole list.
func (l *resultList) apply(transcript string, final bool, confidence float64) (int, []Result) {
	n := len(l.items)
	idx := n
	if n > 0 && !l.items[n-1].IsFinal {
		idx = n - 1
		l.items = l.items[:idx]
	}
	if transcript != "" {
		l.items = append(l.items, Result{Transcript: transcript, IsFinal: final, Confidence: confidence})
	}
	out := make([]Result, len(l.items))
	copy(out, l.items)
	return idx, out
}

func (l *resultList) reset() { l.items = nil }
