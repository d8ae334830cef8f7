package spine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wrathskeller/rigger/pkg/body"
)

// ErrInsufficientLandmarks matches every *InsufficientLandmarksError
var ErrInsufficientLandmarks = errors.New("insufficient landmarks")

// InsufficientLandmarksError reports a part group whose anchor bone could
// not be derived. Missing lists landmarks that were absent, non-finite or
// below the confidence threshold; Err carries a geometry failure when the
// landmarks were present but degenerate.
type InsufficientLandmarksError struct {
	Group   body.PartGroupID
	Missing []body.Landmark
	Err     error
}

func (e *InsufficientLandmarksError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Group, ErrInsufficientLandmarks)
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, l := range e.Missing {
			names[i] = l.String()
		}
		fmt.Fprintf(&b, " (missing %s)", strings.Join(names, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *InsufficientLandmarksError) Is(target error) bool {
	return target == ErrInsufficientLandmarks
}

func (e *InsufficientLandmarksError) Unwrap() error { return e.Err }

// SkeletonError aborts a build and lists every part that failed
type SkeletonError struct {
	Failures []*InsufficientLandmarksError
}

func (e *SkeletonError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("skeleton aborted, %d part(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *SkeletonError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}

// Groups returns the failed part groups in build order
func (e *SkeletonError) Groups() []body.PartGroupID {
	out := make([]body.PartGroupID, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Group
	}
	return out
}
