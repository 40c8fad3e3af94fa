package publish_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/artifactoor/pkg/matcher"
	"github.com/ethpandaops/artifactoor/pkg/publish"
	"github.com/ethpandaops/artifactoor/pkg/storage"
)

// fakeGateway records gateway calls in order and serves canned failures.
type fakeGateway struct {
	endpoint  string
	ensureErr error
	putErr    map[string]error

	ensureCalls []string
	putCalls    []string
	objects     map[string]string
	putSizes    map[string]int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		endpoint: "https://storage.test:9000",
		putErr:   map[string]error{},
		objects:  map[string]string{},
		putSizes: map[string]int64{},
	}
}

func (g *fakeGateway) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return true, nil
}

func (g *fakeGateway) EnsureBucket(ctx context.Context, bucket string) error {
	g.ensureCalls = append(g.ensureCalls, bucket)

	return g.ensureErr
}

func (g *fakeGateway) PutObject(
	ctx context.Context,
	bucket, key string,
	r io.Reader,
	size int64,
) error {
	g.putCalls = append(g.putCalls, bucket+"/"+key)

	if err := g.putErr[key]; err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	g.objects[key] = string(data)
	g.putSizes[key] = size

	return nil
}

func (g *fakeGateway) Endpoint() string {
	return g.endpoint
}

// fakeDispatcher records dispatched tasks in order and serves canned
// failures keyed by object key.
type fakeDispatcher struct {
	errs       map[string]error
	onDispatch func(publish.Task)

	calls []publish.Task
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, task publish.Task) error {
	d.calls = append(d.calls, task)

	if d.onDispatch != nil {
		d.onDispatch(task)
	}

	if err := d.errs[task.ObjectKey]; err != nil {
		return err
	}

	return nil
}

// writeWorkspace creates a workspace with the given files, keyed by
// slash-separated relative path.
func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return root
}

func newTestPublisher(
	t *testing.T,
	gw storage.Gateway,
	d publish.Dispatcher,
	console io.Writer,
) *publish.Publisher {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	return publish.NewPublisher(log, gw, d, publish.Options{Console: console})
}

func TestPublisher_SkipsDecidedBuild(t *testing.T) {
	t.Parallel()

	for _, result := range []publish.BuildResult{publish.ResultAborted, publish.ResultFailure} {
		t.Run(string(result), func(t *testing.T) {
			t.Parallel()

			gw := newFakeGateway()
			d := &fakeDispatcher{}

			var console bytes.Buffer

			p := newTestPublisher(t, gw, d, &console)

			rep := p.Run(context.Background(), publish.Request{
				Patterns:    []string{"out/*.txt"},
				Bucket:      "artifacts",
				BuildResult: result,
			})

			assert.Equal(t, publish.SignalSkipped, rep.Signal)
			assert.Empty(t, gw.ensureCalls)
			assert.Empty(t, d.calls)
			assert.Empty(t, rep.Outcomes)

			// Exactly one console line records the skip.
			assert.Equal(t,
				"[artifactoor] skipping upload: build result is "+string(result)+"\n",
				console.String())
		})
	}
}

func TestPublisher_ContinueOnError(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{
		"out/a.txt": "alpha",
		"out/b.txt": "bravo",
		"out/c.txt": "charlie",
	})

	gw := newFakeGateway()
	d := &fakeDispatcher{errs: map[string]error{
		"b.txt": storage.NewObjectError("putObject", "artifacts", "b.txt",
			errors.New("io failure")),
	}}

	var console bytes.Buffer

	p := newTestPublisher(t, gw, d, &console)

	rep := p.Run(context.Background(), publish.Request{
		Patterns:  []string{"out/*.txt"},
		Bucket:    "artifacts",
		Workspace: root,
	})

	// Every match is attempted, the failure included.
	require.Len(t, d.calls, 3)
	assert.Equal(t, "a.txt", d.calls[0].ObjectKey)
	assert.Equal(t, "b.txt", d.calls[1].ObjectKey)
	assert.Equal(t, "c.txt", d.calls[2].ObjectKey)

	assert.Equal(t, publish.SignalUnstable, rep.Signal)
	assert.Equal(t, 2, rep.Uploaded)
	assert.Equal(t, 1, rep.Failed)
	assert.NoError(t, rep.Cause)

	require.Len(t, rep.Outcomes, 3)
	assert.NoError(t, rep.Outcomes[0].Err)
	assert.Error(t, rep.Outcomes[1].Err)
	assert.NoError(t, rep.Outcomes[2].Err)

	// Tasks carry the gateway endpoint and an absolute file path.
	assert.Equal(t, gw.endpoint, d.calls[0].Endpoint)
	assert.True(t, filepath.IsAbs(d.calls[0].FilePath))

	assert.Contains(t, console.String(), "ERROR: failed to upload out/b.txt")
	assert.Contains(t, console.String(), "uploaded out/a.txt to artifacts/a.txt")
	assert.Contains(t, console.String(), "uploaded out/c.txt to artifacts/c.txt")

	assert.Positive(t, rep.Duration)
	assert.Less(t, rep.Duration, time.Minute)
}

func TestPublisher_ExactKeySequence(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{
		"out/a.txt": "a",
		"out/b.txt": "b",
	})

	gw := newFakeGateway()

	var console bytes.Buffer

	p := newTestPublisher(t, gw, &publish.LocalDispatcher{Gateway: gw}, &console)

	rep := p.Run(context.Background(), publish.Request{
		Patterns:  publish.SplitPatterns("out/a.txt,out/b.txt"),
		Bucket:    "artifacts",
		Prefix:    "ci-42",
		Workspace: root,
	})

	assert.Equal(t, publish.SignalContinue, rep.Signal)
	assert.Equal(t, []string{"artifacts"}, gw.ensureCalls)
	assert.Equal(t,
		[]string{"artifacts/ci-42/a.txt", "artifacts/ci-42/b.txt"},
		gw.putCalls)
	assert.Equal(t, "a", gw.objects["ci-42/a.txt"])
	assert.Equal(t, "b", gw.objects["ci-42/b.txt"])
}

func TestPublisher_DirectoryMatchAbortsAfterEarlierFiles(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{
		"out/a.txt":     "a",
		"out/sub/x.txt": "x",
	})

	gw := newFakeGateway()
	d := &fakeDispatcher{}

	var console bytes.Buffer

	p := newTestPublisher(t, gw, d, &console)

	rep := p.Run(context.Background(), publish.Request{
		Patterns:  []string{"out/*"},
		Bucket:    "artifacts",
		Workspace: root,
	})

	// The file that sorts before the directory was uploaded, then the
	// directory stopped the run.
	require.Len(t, d.calls, 1)
	assert.Equal(t, "a.txt", d.calls[0].ObjectKey)

	assert.Equal(t, publish.SignalUnstable, rep.Signal)
	assert.Equal(t, 1, rep.Uploaded)

	var dirErr *matcher.NotAFileError
	require.ErrorAs(t, rep.Cause, &dirErr)

	assert.Contains(t, console.String(), "ERROR: aborting upload:")
	assert.Contains(t, console.String(), "is a directory, not a regular file")
}

func TestPublisher_PatternErrorAborts(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	d := &fakeDispatcher{}

	var console bytes.Buffer

	p := newTestPublisher(t, gw, d, &console)

	rep := p.Run(context.Background(), publish.Request{
		Patterns:  []string{"out/["},
		Bucket:    "artifacts",
		Workspace: t.TempDir(),
	})

	assert.Equal(t, publish.SignalUnstable, rep.Signal)
	assert.Empty(t, d.calls)

	var patternErr *matcher.PatternError
	require.ErrorAs(t, rep.Cause, &patternErr)

	assert.Contains(t, console.String(), "bad glob pattern")
}

func TestPublisher_BucketFailureShortCircuits(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	gw.ensureErr = storage.NewBucketError("makeBucket", "artifacts", storage.ErrAccessDenied)

	d := &fakeDispatcher{}

	var console bytes.Buffer

	p := newTestPublisher(t, gw, d, &console)

	rep := p.Run(context.Background(), publish.Request{
		Patterns:  []string{"out/*.txt"},
		Bucket:    "artifacts",
		Workspace: t.TempDir(),
	})

	assert.Equal(t, publish.SignalUnstable, rep.Signal)
	assert.ErrorIs(t, rep.Cause, storage.ErrAccessDenied)
	assert.Empty(t, d.calls)
	assert.Empty(t, rep.Outcomes)
	assert.Contains(t, console.String(), "ERROR: bucket artifacts unavailable")
}

func TestPublisher_ZeroMatchesIsSilentNoOp(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	d := &fakeDispatcher{}

	var console bytes.Buffer

	p := newTestPublisher(t, gw, d, &console)

	rep := p.Run(context.Background(), publish.Request{
		Patterns:  []string{"dist/*.jar", "bin/*.exe"},
		Bucket:    "artifacts",
		Workspace: t.TempDir(),
	})

	assert.Equal(t, publish.SignalContinue, rep.Signal)
	assert.Empty(t, d.calls)
	assert.Empty(t, rep.Outcomes)
	assert.Equal(t,
		"[artifactoor] no files matched dist/*.jar, bin/*.exe\n",
		console.String())
}

func TestPublisher_CancellationAbortsRemainingFiles(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t, map[string]string{
		"out/a.txt": "a",
		"out/b.txt": "b",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := newFakeGateway()
	d := &fakeDispatcher{}
	d.onDispatch = func(publish.Task) { cancel() }

	var console bytes.Buffer

	p := newTestPublisher(t, gw, d, &console)

	rep := p.Run(ctx, publish.Request{
		Patterns:  []string{"out/*.txt"},
		Bucket:    "artifacts",
		Workspace: root,
	})

	// The first file went out, then the cancellation stopped the run
	// before the second dispatch.
	require.Len(t, d.calls, 1)
	assert.Equal(t, publish.SignalUnstable, rep.Signal)
	assert.True(t, publish.IsCancellation(rep.Cause))

	assert.Contains(t, console.String(), "interrupted")
	assert.NotContains(t, console.String(), "ERROR: aborting upload")
}

func TestPublisher_CustomLabel(t *testing.T) {
	t.Parallel()

	gw := newFakeGateway()
	d := &fakeDispatcher{}

	var console bytes.Buffer

	log := logrus.New()
	log.SetOutput(io.Discard)

	p := publish.NewPublisher(log, gw, d, publish.Options{
		Console: &console,
		Label:   "[ci]",
	})

	p.Run(context.Background(), publish.Request{
		Patterns:  []string{"dist/*.jar"},
		Bucket:    "artifacts",
		Workspace: t.TempDir(),
	})

	assert.Equal(t, "[ci] no files matched dist/*.jar\n", console.String())
}

func TestPublisher_SubtreeKeys(t *testing.T) {
	t.Parallel()

	t.Run("no prefix keeps subtree", func(t *testing.T) {
		t.Parallel()

		root := writeWorkspace(t, map[string]string{"out/x/y.log": "y"})

		gw := newFakeGateway()
		d := &fakeDispatcher{}
		p := newTestPublisher(t, gw, d, io.Discard)

		p.Run(context.Background(), publish.Request{
			Patterns:  []string{"out/**/*.log"},
			Bucket:    "artifacts",
			Workspace: root,
		})

		require.Len(t, d.calls, 1)
		assert.Equal(t, "x/y.log", d.calls[0].ObjectKey)
	})

	t.Run("prefix keeps basename only", func(t *testing.T) {
		t.Parallel()

		root := writeWorkspace(t, map[string]string{"out/x/y.log": "y"})

		gw := newFakeGateway()
		d := &fakeDispatcher{}
		p := newTestPublisher(t, gw, d, io.Discard)

		p.Run(context.Background(), publish.Request{
			Patterns:  []string{"out/**/*.log"},
			Bucket:    "artifacts",
			Prefix:    "ci-42",
			Workspace: root,
		})

		require.Len(t, d.calls, 1)
		assert.Equal(t, "ci-42/y.log", d.calls[0].ObjectKey)
	})
}
