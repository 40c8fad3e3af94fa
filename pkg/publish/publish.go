package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethpandaops/artifactoor/pkg/matcher"
	"github.com/ethpandaops/artifactoor/pkg/storage"
	"github.com/sirupsen/logrus"
)

// DefaultLabel prefixes every console trail line when no display label
// is configured.
const DefaultLabel = "[artifactoor]"

// Outcome records one attempted upload.
type Outcome struct {
	// File is the workspace-relative path of the source file.
	File string

	// Key is the object key the upload targeted.
	Key string

	// Err is the upload failure, nil on success.
	Err error
}

// Report aggregates a run's outcomes and its final signal.
type Report struct {
	Signal   Signal
	Outcomes []Outcome
	Uploaded int
	Failed   int

	// Cause is the error that stopped the run early; nil for a run
	// that attempted every match.
	Cause error

	Duration time.Duration
}

func (r *Report) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)

	if o.Err != nil {
		r.Failed++
	} else {
		r.Uploaded++
	}
}

// Options carries the host-facing knobs of a Publisher.
type Options struct {
	// Console receives the human-readable trail for the CI log.
	// Defaults to os.Stdout.
	Console io.Writer

	// Label prefixes every console line. Defaults to DefaultLabel.
	Label string
}

// Publisher orchestrates upload runs. A run never returns an error:
// every pipeline failure is consumed into the report and its signal,
// and degradation is the ceiling.
type Publisher struct {
	log        logrus.FieldLogger
	gateway    storage.Gateway
	dispatcher Dispatcher
	console    io.Writer
	label      string
}

// NewPublisher creates a publisher over the given gateway and
// dispatcher. The gateway handles bucket checks for every run; the
// dispatcher decides where each file upload executes.
func NewPublisher(
	log logrus.FieldLogger,
	gateway storage.Gateway,
	dispatcher Dispatcher,
	opts Options,
) *Publisher {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	label := opts.Label
	if label == "" {
		label = DefaultLabel
	}

	return &Publisher{
		log:        log.WithField("component", "publisher"),
		gateway:    gateway,
		dispatcher: dispatcher,
		console:    console,
		label:      label,
	}
}

// Run executes one upload run and reports the build-level outcome.
// A decided build skips everything; a bucket failure aborts before
// iteration; per-file failures degrade the signal but never stop the
// remaining uploads; pattern errors, directory matches, and
// cancellation stop the run where they occur.
func (p *Publisher) Run(ctx context.Context, req Request) *Report {
	start := time.Now()
	rep := &Report{Signal: SignalContinue}

	defer func() { rep.Duration = time.Since(start) }()

	if req.BuildResult.Decided() {
		rep.Signal = SignalSkipped
		p.println("skipping upload: build result is %s", req.BuildResult)
		p.log.WithField("build_result", string(req.BuildResult)).Debug("Upload run skipped")

		return rep
	}

	if err := p.gateway.EnsureBucket(ctx, req.Bucket); err != nil {
		rep.Signal = SignalUnstable
		rep.Cause = err
		p.println("ERROR: bucket %s unavailable: %v", req.Bucket, err)
		p.log.WithError(err).WithField("bucket", req.Bucket).Error("Bucket ensure failed")

		return rep
	}

	endpoint := p.gateway.Endpoint()
	matched := 0

	for _, pattern := range req.Patterns {
		err := matcher.Walk(req.Workspace, pattern, req.Exclude, func(m matcher.Match) error {
			matched++

			return p.uploadOne(ctx, req, endpoint, m, rep)
		})
		if err != nil {
			rep.Signal = SignalUnstable
			rep.Cause = err
			p.logAbort(err)

			return rep
		}
	}

	if matched == 0 {
		p.println("no files matched %s", strings.Join(req.Patterns, ", "))
		p.log.WithField("patterns", req.Patterns).Info("No files matched")

		return rep
	}

	if rep.Failed > 0 {
		rep.Signal = SignalUnstable
	}

	p.log.WithFields(logrus.Fields{
		"uploaded": rep.Uploaded,
		"failed":   rep.Failed,
		"signal":   rep.Signal.String(),
	}).Info("Upload run finished")

	return rep
}

// uploadOne dispatches a single match. It returns an error only when
// the run must stop; per-file failures are recorded and consumed here.
func (p *Publisher) uploadOne(
	ctx context.Context,
	req Request,
	endpoint string,
	m matcher.Match,
	rep *Report,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := ObjectKeyFor(req.Prefix, m.Name())
	task := Task{
		Bucket:    req.Bucket,
		ObjectKey: key,
		FilePath:  m.Path,
		Endpoint:  endpoint,
	}

	err := p.dispatcher.Dispatch(ctx, task)

	rep.record(Outcome{File: m.Rel, Key: key, Err: err})

	if err == nil {
		p.println("uploaded %s to %s/%s", m.Rel, req.Bucket, key)
		p.log.WithFields(logrus.Fields{
			"file":   m.Rel,
			"bucket": req.Bucket,
			"key":    key,
		}).Debug("Uploaded file")

		return nil
	}

	if Classify(err) == DispositionAbort {
		return err
	}

	p.println("ERROR: failed to upload %s: %v", m.Rel, err)
	p.log.WithError(err).WithFields(logrus.Fields{
		"file":   m.Rel,
		"bucket": req.Bucket,
		"key":    key,
	}).Warn("Upload failed")

	return nil
}

// logAbort writes the trail line for a run that stopped early,
// distinguishing interruption from ordinary failure.
func (p *Publisher) logAbort(err error) {
	if IsCancellation(err) {
		p.println("interrupted: %v", err)
		p.log.WithError(err).Warn("Upload run interrupted")

		return
	}

	p.println("ERROR: aborting upload: %v", err)
	p.log.WithError(err).Error("Upload run aborted")
}

func (p *Publisher) println(format string, args ...any) {
	fmt.Fprintf(p.console, "%s %s\n", p.label, fmt.Sprintf(format, args...))
}
