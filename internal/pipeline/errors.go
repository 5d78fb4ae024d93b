package pipeline

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/artifact"
	"github.com/saadabdullah098/networksecurity/internal/docstore"
	"github.com/saadabdullah098/networksecurity/internal/ingestion"
	"github.com/saadabdullah098/networksecurity/internal/model"
	"github.com/saadabdullah098/networksecurity/internal/platform/objectstore"
	"github.com/saadabdullah098/networksecurity/internal/selection"
	"github.com/saadabdullah098/networksecurity/internal/tracking"
	"github.com/saadabdullah098/networksecurity/internal/transform"
	"github.com/saadabdullah098/networksecurity/internal/validation"
)

// ErrorKind classifies why a stage failed.
type ErrorKind string

const (
	KindIO           ErrorKind = "io"
	KindSchema       ErrorKind = "schema"
	KindValidation   ErrorKind = "validation"
	KindFit          ErrorKind = "fit"
	KindConnectivity ErrorKind = "connectivity"
	KindCanceled     ErrorKind = "canceled"
)

// StageError halts a run. Origin is the file:line where the underlying error
// was first raised.
type StageError struct {
	Stage  artifact.Stage
	Op     string
	Kind   ErrorKind
	Origin string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s failed [%s] at %s: %v", e.Stage, e.Op, e.Kind, e.Origin, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

func stageError(stage artifact.Stage, op string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	origin := originOf(err)
	if origin == "" {
		// Frame 0 is this function; frame 1 is the stage call site.
		st := pkgerrors.WithStack(err).(stackTracer).StackTrace()
		if len(st) > 1 {
			origin = fmt.Sprintf("%s:%d", st[1], st[1])
		}
	}
	return &StageError{Stage: stage, Op: op, Kind: Classify(err), Origin: origin, Err: err}
}

// originOf returns the first frame of the deepest stack trace in the chain.
func originOf(err error) string {
	var origin string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			if frames := st.StackTrace(); len(frames) > 0 {
				origin = fmt.Sprintf("%s:%d", frames[0], frames[0])
			}
		}
	}
	return origin
}

// Classify maps a stage error onto its kind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, docstore.ErrUnavailable),
		errors.Is(err, objectstore.ErrNotFound),
		errors.As(err, new(*tracking.APIError)):
		return KindConnectivity
	case errors.Is(err, validation.ErrInvalidSchema):
		return KindSchema
	case errors.Is(err, docstore.ErrEmptyCollection),
		errors.Is(err, ingestion.ErrInvalidSplit),
		errors.Is(err, transform.ErrInvalidLabel),
		errors.Is(err, transform.ErrInvalidInput),
		errors.Is(err, validation.ErrInvalidThreshold),
		errors.Is(err, artifact.ErrOutputModified):
		return KindValidation
	case errors.Is(err, model.ErrFit),
		errors.Is(err, model.ErrInvalidParam),
		errors.Is(err, model.ErrNotFitted),
		errors.Is(err, transform.ErrNotFitted),
		errors.Is(err, selection.ErrNoCandidates):
		return KindFit
	}
	return KindIO
}
