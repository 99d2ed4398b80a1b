package session

import (
	"errors"
	"fmt"

	"scribe/audio"
	"scribe/transcriber"
)

type ErrorKind int

const (
	// PermissionDenied: microphone access refused. Recoverable once the
	// user grants access.
	PermissionDenied ErrorKind = iota
	// DeviceError: the microphone could not be opened for another reason.
	DeviceError
	// RecognitionWarning: no speech heard. The session keeps recording.
	RecognitionWarning
	// RecognitionFatal: any other recognition error. Recording stops.
	RecognitionFatal
	// RestartFailure: the recognizer could not be restarted after its
	// retry budget ran out. Recording stops.
	RestartFailure
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission_denied"
	case DeviceError:
		return "device_error"
	case RecognitionWarning:
		return "recognition_warning"
	case RecognitionFatal:
		return "recognition_fatal"
	case RestartFailure:
		return "restart_failure"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a classified failure surfaced to the user as a transient status.
type Error struct {
	Kind ErrorKind
	Code transcriber.ErrorCode
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the error ends the recording.
func (e *Error) Fatal() bool { return e.Kind != RecognitionWarning }

const permissionGuidance = "Allow microphone access for this terminal in your system privacy settings, then start again."

// Status renders the error for the status card.
func (e *Error) Status() Status {
	switch e.Kind {
	case PermissionDenied:
		return Status{Kind: StatusError, Text: "Microphone access denied", Guidance: permissionGuidance}
	case DeviceError:
		return Status{Kind: StatusError, Text: fmt.Sprintf("Microphone error: %v", e.Err)}
	case RecognitionWarning:
		return Status{Kind: StatusWarning, Text: "No speech detected. Keep talking..."}
	case RestartFailure:
		return Status{Kind: StatusError, Text: fmt.Sprintf("Recognition could not restart: %v", e.Err)}
	}
	if e.Err != nil {
		return Status{Kind: StatusError, Text: fmt.Sprintf("Recognition error: %v", e.Err)}
	}
	return Status{Kind: StatusError, Text: fmt.Sprintf("Recognition error: %s", e.Code)}
}

// classifyAcquire maps a microphone acquisition failure.
func classifyAcquire(err error) *Error {
	if errors.Is(err, audio.ErrPermissionDenied) {
		return &Error{Kind: PermissionDenied, Code: transcriber.ErrNotAllowed, Err: err}
	}
	return &Error{Kind: DeviceError, Err: err}
}

// classifyRecognition maps a recognition error event.
func classifyRecognition(ev transcriber.Event) *Error {
	var err error
	if ev.Message != "" && ev.Message != string(ev.Code) {
		err = errors.New(ev.Message)
	}
	switch ev.Code {
	case transcriber.ErrNoSpeech:
		return &Error{Kind: RecognitionWarning, Code: ev.Code, Err: err}
	case transcriber.ErrNotAllowed:
		return &Error{Kind: PermissionDenied, Code: ev.Code, Err: err}
	}
	return &Error{Kind: RecognitionFatal, Code: ev.Code, Err: err}
}
