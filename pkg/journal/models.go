package journal

import (
	"strings"
	"time"

	"github.com/ethpandaops/artifactoor/pkg/publish"
)

// Run is one recorded upload run.
type Run struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Bucket     string    `gorm:"not null" json:"bucket"`
	Prefix     string    `json:"prefix,omitempty"`
	Source     string    `json:"source"`
	Exclude    string    `json:"exclude,omitempty"`
	Workspace  string    `json:"workspace,omitempty"`
	Signal     string    `gorm:"not null" json:"signal"`
	Uploaded   int       `json:"uploaded"`
	Failed     int       `json:"failed"`
	Cause      string    `json:"cause,omitempty"`
	DurationMS int64     `json:"duration_ms"`

	Files []FileRecord `gorm:"constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

// FileRecord is one attempted upload within a run.
type FileRecord struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	RunID uint   `gorm:"index;not null" json:"run_id"`
	File  string `gorm:"not null" json:"file"`
	Key   string `gorm:"not null" json:"key"`
	Error string `json:"error,omitempty"`
}

// NewRun converts a finished upload report into journal records.
func NewRun(req publish.Request, rep *publish.Report) *Run {
	run := &Run{
		Bucket:     req.Bucket,
		Prefix:     req.Prefix,
		Source:     strings.Join(req.Patterns, ","),
		Exclude:    req.Exclude,
		Workspace:  req.Workspace,
		Signal:     rep.Signal.String(),
		Uploaded:   rep.Uploaded,
		Failed:     rep.Failed,
		DurationMS: rep.Duration.Milliseconds(),
	}

	if rep.Cause != nil {
		run.Cause = rep.Cause.Error()
	}

	run.Files = make([]FileRecord, 0, len(rep.Outcomes))

	for _, o := range rep.Outcomes {
		record := FileRecord{File: o.File, Key: o.Key}
		if o.Err != nil {
			record.Error = o.Err.Error()
		}

		run.Files = append(run.Files, record)
	}

	return run
}
