package pipeline

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/blood-report-parser/constants"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	NoFailure Kind = iota
	BadRequest
	OcrFailed
	InternalError
)

func (k Kind) String() string { return string(k.Outcome()) }

// Outcome is the wire name of the kind.
func (k Kind) Outcome() constants.Outcome {
	switch k {
	case NoFailure:
		return constants.OutcomeOK
	case BadRequest:
		return constants.OutcomeBadRequest
	case OcrFailed:
		return constants.OutcomeOCRFailed
	default:
		return constants.OutcomeInternalError
	}
}

// UserMessage is the text shown to the person who uploaded the file.
func (k Kind) UserMessage() string {
	switch k {
	case NoFailure:
		return ""
	case BadRequest:
		return "Please select a file"
	case OcrFailed:
		return "OCR Processing Failed"
	default:
		return "Something went wrong, please try again"
	}
}

// Failure is the only error type Run returns.
type Failure struct {
	Kind    Kind
	Message string // operator-facing detail
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf classifies err; errors that are not a *Failure are InternalError.
func KindOf(err error) Kind {
	if err == nil {
		return NoFailure
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return InternalError
}

func fail(k Kind, msg string, err error) *Failure {
	return &Failure{Kind: k, Message: msg, Err: err}
}
