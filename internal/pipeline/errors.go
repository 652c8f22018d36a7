package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageValidation    Stage = "validation"
	StagePersist       Stage = "persist"
	StageTranscription Stage = "transcription"
	StageAnalysis      Stage = "analysis"
	StageCleanup       Stage = "cleanup"
)

// Error is a stage-tagged failure. Message is safe to show to clients.
type Error struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StageOf returns the stage of the first *Error in err's chain, or "".
func StageOf(err error) Stage {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

func validationError(err error) *Error {
	return &Error{Stage: StageValidation, Message: "Invalid video file format", Err: err}
}

func persistError(err error) *Error {
	return &Error{Stage: StagePersist, Message: fmt.Sprintf("Failed to store upload: %v", err), Err: err}
}

func transcriptionError(err error) *Error {
	return &Error{Stage: StageTranscription, Message: fmt.Sprintf("Transcription failed: %v", err), Err: err}
}

func analysisError(err error) *Error {
	return &Error{Stage: StageAnalysis, Message: fmt.Sprintf("Analysis failed: %v", err), Err: err}
}
