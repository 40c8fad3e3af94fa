package matcher_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/artifactoor/pkg/matcher"
)

// writeTree creates a workspace with the given files, keyed by
// slash-separated relative path.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return root
}

func rels(matches []matcher.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Rel)
	}

	return out
}

func names(matches []matcher.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Name())
	}

	return out
}

func TestResolve_MatchesInWalkOrder(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt": "a",
		"out/b.txt": "b",
		"out/c.log": "c",
	})

	matches, err := matcher.Resolve(root, []string{"out/*.txt"}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"out/a.txt", "out/b.txt"}, rels(matches))
	assert.Equal(t, []string{"a.txt", "b.txt"}, names(matches))

	for _, m := range matches {
		assert.True(t, filepath.IsAbs(m.Path), "match path should be absolute: %s", m.Path)
	}
}

func TestResolve_MultiplePatternsKeepOrder(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt":  "a",
		"logs/x.log": "x",
	})

	matches, err := matcher.Resolve(root, []string{"logs/*.log", "out/*.txt"}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"logs/x.log", "out/a.txt"}, rels(matches))
}

func TestResolve_ExcludeSuppressesAcrossPatterns(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt":       "a",
		"out/b.tmp":       "b",
		"logs/x.log":      "x",
		"logs/deep/z.tmp": "z",
	})

	matches, err := matcher.Resolve(root,
		[]string{"out/*.txt", "out/*.tmp", "logs/**/*.log", "logs/**/*.tmp"},
		"**/*.tmp")
	require.NoError(t, err)

	assert.Equal(t, []string{"out/a.txt", "logs/x.log"}, rels(matches))
}

func TestResolve_ZeroMatchesIsNotAnError(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt": "a",
	})

	matches, err := matcher.Resolve(root, []string{"dist/*.jar"}, "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestResolve_BadPattern(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := matcher.Resolve(root, []string{"out/["}, "")
	require.Error(t, err)

	var patternErr *matcher.PatternError
	require.ErrorAs(t, err, &patternErr)
	assert.Equal(t, "out/[", patternErr.Pattern)
	assert.Contains(t, err.Error(), "bad glob pattern")
}

func TestResolve_BadExcludePattern(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := matcher.Resolve(root, []string{"out/*.txt"}, "[")
	require.Error(t, err)

	var patternErr *matcher.PatternError
	require.ErrorAs(t, err, &patternErr)
	assert.Equal(t, "[", patternErr.Pattern)
}

func TestWalk_DirectoryMatchStopsAfterEarlierFiles(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt":     "a",
		"out/sub/x.txt": "x",
	})

	var seen []string

	err := matcher.Walk(root, "out/*", "", func(m matcher.Match) error {
		seen = append(seen, m.Rel)

		return nil
	})
	require.Error(t, err)

	var dirErr *matcher.NotAFileError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, filepath.Join(root, "out", "sub"), dirErr.Path)

	// The file that sorts before the directory was still delivered.
	assert.Equal(t, []string{"out/a.txt"}, seen)
}

func TestWalk_TrailingDoublestarSurfacesDirectories(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt": "a",
	})

	// A trailing `**` matches directories as well as files, and a
	// directory match is a hard error. Recursive uploads need a
	// file-shaped final segment, e.g. `out/**/*.txt`.
	err := matcher.Walk(root, "out/**", "", func(m matcher.Match) error {
		return nil
	})
	require.Error(t, err)

	var dirErr *matcher.NotAFileError
	assert.ErrorAs(t, err, &dirErr)
}

func TestWalk_CallbackErrorStopsWalk(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt": "a",
		"out/b.txt": "b",
	})

	boom := errors.New("boom")
	calls := 0

	err := matcher.Walk(root, "out/*.txt", "", func(m matcher.Match) error {
		calls++

		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWalk_NormalizesPatternSpellings(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"out/a.txt": "a",
	})

	for _, pattern := range []string{"out/*.txt", "./out/*.txt", "/out/*.txt"} {
		matches, err := matcher.Resolve(root, []string{pattern}, "")
		require.NoError(t, err, "pattern %q", pattern)
		assert.Equal(t, []string{"out/a.txt"}, rels(matches), "pattern %q", pattern)
	}
}

func TestMatch_NameStripsFixedPatternPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		files   map[string]string
		want    []string
	}{
		{
			name:    "single wildcard directory",
			pattern: "out/*.txt",
			files:   map[string]string{"out/a.txt": ""},
			want:    []string{"a.txt"},
		},
		{
			name:    "doublestar keeps subtree",
			pattern: "out/**/*.log",
			files:   map[string]string{"out/x/y/z.log": ""},
			want:    []string{"x/y/z.log"},
		},
		{
			name:    "root level pattern",
			pattern: "*.txt",
			files:   map[string]string{"a.txt": ""},
			want:    []string{"a.txt"},
		},
		{
			name:    "wildcard free pattern",
			pattern: "out/a.txt",
			files:   map[string]string{"out/a.txt": ""},
			want:    []string{"a.txt"},
		},
		{
			name:    "nested fixed directories",
			pattern: "build/libs/*.jar",
			files:   map[string]string{"build/libs/app.jar": ""},
			want:    []string{"app.jar"},
		},
		{
			name:    "doublestar match at fixed depth",
			pattern: "out/**/*.bin",
			files:   map[string]string{"out/sub/f.bin": ""},
			want:    []string{"sub/f.bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := writeTree(t, tt.files)

			matches, err := matcher.Resolve(root, []string{tt.pattern}, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(matches))
		})
	}
}
