package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/matcher"
)

// Signal is the build-level outcome of an upload run.
type Signal int

const (
	// SignalContinue leaves the build result untouched.
	SignalContinue Signal = iota

	// SignalUnstable degrades the build to the non-blocking tier:
	// something went wrong, but the build is not failed by it.
	SignalUnstable

	// SignalSkipped means the build was already decided and nothing
	// was attempted.
	SignalSkipped
)

func (s Signal) String() string {
	switch s {
	case SignalContinue:
		return "continue"
	case SignalUnstable:
		return "unstable"
	case SignalSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Disposition is how an iteration error affects the rest of the run.
type Disposition int

const (
	// DispositionContinue records the failure and keeps iterating.
	DispositionContinue Disposition = iota

	// DispositionAbort stops the run immediately.
	DispositionAbort
)

// Classify maps any error raised during iteration to its disposition.
// Pattern errors, directory matches, and cancellation abort the run;
// everything else, storage and file I/O failures included, is a
// per-file failure that degrades the signal but continues iteration.
func Classify(err error) Disposition {
	if err == nil {
		return DispositionContinue
	}

	if IsCancellation(err) {
		return DispositionAbort
	}

	var patternErr *matcher.PatternError
	if errors.As(err, &patternErr) {
		return DispositionAbort
	}

	var notAFile *matcher.NotAFileError
	if errors.As(err, &notAFile) {
		return DispositionAbort
	}

	return DispositionContinue
}

// IsCancellation reports whether err carries a context cancellation or
// deadline expiry anywhere in its chain.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
