// Package matcher resolves glob patterns against a workspace root into
// the concrete set of regular files an upload run will publish. Patterns
// use slash separators and doublestar syntax (`**` spans directories);
// a single optional exclude pattern suppresses matches across all
// patterns.
package matcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is one file selected by a pattern.
type Match struct {
	// Path is the absolute path of the matched file.
	Path string

	// Rel is the slash-separated path relative to the workspace root.
	Rel string

	// NameOffset is the byte offset into Rel where the object-relative
	// name begins. The pattern's fixed leading directories are part of
	// the search root, not of the uploaded name.
	NameOffset int
}

// Name returns the object-relative name of the match: Rel with the
// pattern's fixed leading directories stripped.
func (m Match) Name() string {
	return m.Rel[m.NameOffset:]
}

// PatternError reports a malformed glob pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("bad glob pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// NotAFileError reports a pattern match that resolved to a directory.
// Directory matches are a hard error, never a silent skip.
type NotAFileError struct {
	Path string
}

func (e *NotAFileError) Error() string {
	return fmt.Sprintf("%s is a directory, not a regular file", e.Path)
}

// Walk streams every file matching pattern under root to fn, in
// directory walk order, skipping matches suppressed by the exclude
// pattern. A match that is a directory stops the walk with
// *NotAFileError. An error returned by fn stops the walk and is
// returned unchanged.
func Walk(root, pattern, exclude string, fn func(Match) error) error {
	if root == "" {
		root = "."
	}

	pattern = normalizePattern(pattern)
	exclude = normalizePattern(exclude)

	if !doublestar.ValidatePattern(pattern) {
		return &PatternError{Pattern: pattern, Err: doublestar.ErrBadPattern}
	}

	if exclude != "" && !doublestar.ValidatePattern(exclude) {
		return &PatternError{Pattern: exclude, Err: doublestar.ErrBadPattern}
	}

	offset := fixedPrefixLen(pattern)

	err := doublestar.GlobWalk(os.DirFS(root), pattern, func(p string, d fs.DirEntry) error {
		if exclude != "" && doublestar.MatchUnvalidated(exclude, p) {
			return nil
		}

		abs := filepath.Join(root, filepath.FromSlash(p))

		if d.IsDir() {
			return &NotAFileError{Path: abs}
		}

		return fn(Match{Path: abs, Rel: p, NameOffset: offset})
	}, doublestar.WithFailOnIOErrors())
	if err != nil {
		if errors.Is(err, doublestar.ErrBadPattern) {
			return &PatternError{Pattern: pattern, Err: err}
		}

		return err
	}

	return nil
}

// Resolve collects the matches of every pattern in order, with the
// shared exclude applied to each. Zero matches is not an error.
func Resolve(root string, patterns []string, exclude string) ([]Match, error) {
	var matches []Match

	for _, pattern := range patterns {
		err := Walk(root, pattern, exclude, func(m Match) error {
			matches = append(matches, m)

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return matches, nil
}

// normalizePattern strips redundant "./" prefixes and a leading slash
// so workspace-rooted spellings resolve the same way.
func normalizePattern(pattern string) string {
	for strings.HasPrefix(pattern, "./") {
		pattern = pattern[2:]
	}

	return strings.TrimPrefix(pattern, "/")
}

// fixedPrefixLen returns the byte length, separator included, of the
// pattern's fixed leading directory segments: the segments before the
// first wildcard, not counting the final segment. For a wildcard-free
// pattern everything but the basename is fixed.
func fixedPrefixLen(pattern string) int {
	segments := strings.Split(pattern, "/")
	length := 0

	for i, seg := range segments {
		if i == len(segments)-1 || containsMeta(seg) {
			break
		}

		length += len(seg) + 1
	}

	return length
}

// containsMeta reports whether a path segment contains glob
// metacharacters.
func containsMeta(seg string) bool {
	return strings.ContainsAny(seg, `*?[{\`)
}
