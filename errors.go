package lightbake

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Stage names used in error context and progress reports.
const (
	StageUnify     = "unify"
	StageCandidate = "candidates"
	StageVisible   = "visibility"
	StageMerge     = "merge"
	StageClosure   = "closure"
	StageSample    = "sampling"
	StageScore     = "scoring"
	StageBake      = "bake"
)

type ConversionErrorKind int

const (
	DegenerateGeometry ConversionErrorKind = iota + 1
	InvalidAttenuation
	DuplicateIdentifier
)

func (k ConversionErrorKind) String() string {
	switch k {
	case DegenerateGeometry:
		return "DegenerateGeometry"
	case InvalidAttenuation:
		return "InvalidAttenuation"
	case DuplicateIdentifier:
		return "DuplicateIdentifier"
	default:
		return fmt.Sprintf("ConversionErrorKind(%d)", int(k))
	}
}

// ConversionError reports a light that cannot be represented physically.
// It is recoverable: the light is dropped and the run continues.
type ConversionError struct {
	Kind    ConversionErrorKind
	LightID string
	Index   int
	Reason  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: light %q (#%d): %s: %s", StageUnify, e.LightID, e.Index, e.Kind, e.Reason)
}

// Is matches another *ConversionError by kind, so errors.Is(err,
// &ConversionError{Kind: InvalidAttenuation}) works.
func (e *ConversionError) Is(target error) bool {
	t, ok := target.(*ConversionError)
	return ok && t.Kind == e.Kind
}

type ClusteringErrorKind int

const (
	GeometryQueryFailed ClusteringErrorKind = iota + 1
)

func (k ClusteringErrorKind) String() string {
	if k == GeometryQueryFailed {
		return "GeometryQueryFailed"
	}
	return fmt.Sprintf("ClusteringErrorKind(%d)", int(k))
}

// ClusteringError aborts the run; no cluster data is returned with it.
type ClusteringError struct {
	Kind    ClusteringErrorKind
	Stage   string
	LightID string
	OtherID string
	Err     error
}

func (e *ClusteringError) Error() string {
	subject := fmt.Sprintf("light %q", e.LightID)
	if e.OtherID != "" {
		subject = fmt.Sprintf("lights %q/%q", e.LightID, e.OtherID)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Stage, e.Kind, subject, e.Err)
}

func (e *ClusteringError) Unwrap() error { return e.Err }

func (e *ClusteringError) Is(target error) bool {
	t, ok := target.(*ClusteringError)
	return ok && t.Kind == e.Kind
}

type BakeErrorKind int

const (
	ClusterCountExceeded BakeErrorKind = iota + 1
	SampleCountMismatch
)

func (k BakeErrorKind) String() string {
	switch k {
	case ClusterCountExceeded:
		return "ClusterCountExceeded"
	case SampleCountMismatch:
		return "SampleCountMismatch"
	default:
		return fmt.Sprintf("BakeErrorKind(%d)", int(k))
	}
}

// BakeError is fatal; Actual and Max carry the numbers the operator needs
// to adjust the configuration.
type BakeError struct {
	Kind      BakeErrorKind
	ClusterID int
	Actual    int
	Max       int
}

func (e *BakeError) Error() string {
	switch e.Kind {
	case ClusterCountExceeded:
		return fmt.Sprintf("%s: %s: %d clusters, LUT capacity is %d (raise max_clusters or clustering_radius_scale)", StageBake, e.Kind, e.Actual, e.Max)
	default:
		return fmt.Sprintf("%s: %s: cluster %d has %d samples, want %d", StageBake, e.Kind, e.ClusterID, e.Actual, e.Max)
	}
}

func (e *BakeError) Is(target error) bool {
	t, ok := target.(*BakeError)
	return ok && t.Kind == e.Kind
}

// ErrCanceled is returned when the run context is canceled. No partial
// results accompany it.
var ErrCanceled = errors.New("lightbake: run canceled")

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

// Diagnostics collects recoverable per-light problems.
type Diagnostics []*ConversionError

func (d Diagnostics) Err() error {
	var err error
	for _, e := range d {
		err = multierr.Append(err, e)
	}
	return err
}

func (d Diagnostics) Count(kind ConversionErrorKind) int {
	n := 0
	for _, e := range d {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
