package install

import (
	"fmt"
	"time"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/download"
)

// Result describes a finished install run
type Result struct {
	RunID      string
	Version    core.Version
	Descriptor *core.VersionDetails
	Report     *download.Report
	Natives    []string // files extracted into versions/<id>/natives
	Started    time.Time
	Duration   time.Duration
}

// Err returns a *PartialFailureError when any download failed
func (r *Result) Err() error {
	if r == nil || r.Report == nil || len(r.Report.Failed) == 0 {
		return nil
	}
	return &PartialFailureError{
		Failed:   len(r.Report.Failed),
		Total:    r.Report.Total(),
		Failures: r.Report.Failed,
	}
}

// PartialFailureError reports the downloads that did not complete. The
// files that did complete stay on disk.
type PartialFailureError struct {
	Failed   int
	Total    int
	Failures []download.Failure
}

func (e *PartialFailureError) Error() string {
	msg := fmt.Sprintf("%d of %d downloads failed", e.Failed, e.Total)
	if len(e.Failures) > 0 {
		msg += ": " + e.Failures[0].Error()
		if len(e.Failures) > 1 {
			msg += fmt.Sprintf(" (and %d more)", len(e.Failures)-1)
		}
	}
	return msg
}

// Unwrap exposes every cause to errors.Is and errors.As
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
