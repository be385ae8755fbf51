package common

import (
	"errors"
	"fmt"
)

// Kind classifies a case failure.
type Kind string

const (
	KindMissingInput       Kind = "MissingInputError"
	KindExternalService    Kind = "ExternalServiceError"
	KindIncompleteCaseFile Kind = "IncompleteCaseFileError"
	KindReportPublish      Kind = "ReportPublishError"
)

// Sentinels for errors.Is matching against a CaseError of the same kind.
var (
	ErrMissingInput       = &CaseError{Kind: KindMissingInput}
	ErrExternalService    = &CaseError{Kind: KindExternalService}
	ErrIncompleteCaseFile = &CaseError{Kind: KindIncompleteCaseFile}
	ErrReportPublish      = &CaseError{Kind: KindReportPublish}
)

// CaseError is the structured failure returned by stages, the pipeline and
// the dispatcher's collaborators.
type CaseError struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *CaseError) Error() string {
	prefix := string(e.Kind)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Kind, e.Stage)
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

func (e *CaseError) Unwrap() error {
	return e.Cause
}

// Is reports kind equality so callers can match on the sentinels.
func (e *CaseError) Is(target error) bool {
	t, ok := target.(*CaseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func MissingInput(stage, format string, args ...any) error {
	return &CaseError{Kind: KindMissingInput, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func ExternalService(stage, message string, cause error) error {
	return &CaseError{Kind: KindExternalService, Stage: stage, Message: message, Cause: cause}
}

func IncompleteCaseFile(stage, format string, args ...any) error {
	return &CaseError{Kind: KindIncompleteCaseFile, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func ReportPublish(stage, message string, cause error) error {
	return &CaseError{Kind: KindReportPublish, Stage: stage, Message: message, Cause: cause}
}

// KindOf returns the kind of the first CaseError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *CaseError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
