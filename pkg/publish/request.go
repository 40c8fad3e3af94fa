// Package publish orchestrates one artifact upload run: it checks the
// inbound build result, ensures the target bucket, iterates pattern
// matches in order, dispatches one upload task per file, and reduces
// the outcomes to a single build-level signal.
package publish

import (
	"fmt"
	"strings"
)

// BuildResult is the inbound state of the build at upload time.
type BuildResult string

const (
	// ResultNone means the build has not reported a result yet.
	ResultNone BuildResult = ""

	ResultSuccess  BuildResult = "success"
	ResultUnstable BuildResult = "unstable"
	ResultFailure  BuildResult = "failure"
	ResultAborted  BuildResult = "aborted"
)

// Decided reports whether the build outcome is already settled such
// that uploading would be pointless.
func (r BuildResult) Decided() bool {
	return r == ResultAborted || r == ResultFailure
}

// ParseBuildResult parses the surface form of a build result. The empty
// string is valid and means no result has been reported.
func ParseBuildResult(s string) (BuildResult, error) {
	switch BuildResult(strings.ToLower(strings.TrimSpace(s))) {
	case ResultNone:
		return ResultNone, nil
	case ResultSuccess:
		return ResultSuccess, nil
	case ResultUnstable:
		return ResultUnstable, nil
	case ResultFailure:
		return ResultFailure, nil
	case ResultAborted:
		return ResultAborted, nil
	default:
		return ResultNone, fmt.Errorf("unknown build result %q", s)
	}
}

// Request describes one upload run. Immutable once constructed; built
// per invocation from configuration plus expanded runtime variables.
type Request struct {
	// Patterns are the glob patterns to resolve, in order.
	Patterns []string

	// Exclude optionally suppresses matches across all patterns.
	Exclude string

	// Bucket is the target bucket, created if absent.
	Bucket string

	// Prefix optionally replaces each object's directory part: with a
	// prefix set, objects are named Prefix/basename.
	Prefix string

	// Workspace is the root the patterns resolve against.
	Workspace string

	// BuildResult is the inbound build state; a decided build skips the
	// whole run.
	BuildResult BuildResult
}

// SplitPatterns splits the comma-separated source form into trimmed
// patterns, dropping empty entries.
func SplitPatterns(source string) []string {
	parts := strings.Split(source, ",")
	patterns := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}

	return patterns
}
