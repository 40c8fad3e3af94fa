package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethpandaops/artifactoor/pkg/publish"
	"github.com/ethpandaops/artifactoor/pkg/storage"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/sirupsen/logrus"
)

// maxTaskBytes bounds the upload task request body.
const maxTaskBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
	Size      int64  `json:"size"`
}

type statusResponse struct {
	Version         string  `json:"version"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	InflightUploads int64   `json:"inflight_uploads"`
	Workspace       string  `json:"workspace,omitempty"`
	DiskTotalBytes  uint64  `json:"disk_total_bytes,omitempty"`
	DiskFreeBytes   uint64  `json:"disk_free_bytes,omitempty"`
	DiskUsedPercent float64 `json:"disk_used_percent,omitempty"`
}

// handleHealth reports liveness.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports version, uptime, in-flight uploads, and the
// workspace disk usage when a workspace is configured.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:         s.version,
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		InflightUploads: s.inflight.Load(),
	}

	if s.cfg.Workspace != "" {
		usage, err := disk.UsageWithContext(r.Context(), s.cfg.Workspace)
		if err != nil {
			s.log.WithError(err).Debug("Reading workspace disk usage failed")
		} else {
			resp.Workspace = s.cfg.Workspace
			resp.DiskTotalBytes = usage.Total
			resp.DiskFreeBytes = usage.Free
			resp.DiskUsedPercent = usage.UsedPercent
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleUpload decodes an upload task, checks it against the agent's
// guards, and executes it against the agent's own gateway.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTaskBytes)

	var task publish.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid task payload"})

		return
	}

	if status, msg := s.validateTask(task); status != 0 {
		writeJSON(w, status, errorResponse{msg})

		return
	}

	info, err := os.Stat(task.FilePath)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{fmt.Sprintf("stat %s: %v", task.FilePath, err)})

		return
	}

	if info.IsDir() {
		writeJSON(w, http.StatusUnprocessableEntity,
			errorResponse{fmt.Sprintf("%s is a directory, not a regular file", task.FilePath)})

		return
	}

	if s.maxObjectSize > 0 && info.Size() > s.maxObjectSize {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			errorResponse{fmt.Sprintf("%s exceeds the agent max object size", task.FilePath)})

		return
	}

	// Bound concurrent uploads; waiting respects client disconnect.
	if err := s.uploads.Acquire(r.Context(), 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{"upload slot unavailable"})

		return
	}
	defer s.uploads.Release(1)

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	if err := publish.ExecuteTask(r.Context(), s.gateway, task); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"bucket": task.Bucket,
			"key":    task.ObjectKey,
		}).Warn("Upload task failed")

		writeJSON(w, http.StatusBadGateway, errorResponse{err.Error()})

		return
	}

	s.log.WithFields(logrus.Fields{
		"bucket": task.Bucket,
		"key":    task.ObjectKey,
		"file":   task.FilePath,
	}).Debug("Upload task completed")

	writeJSON(w, http.StatusOK, uploadResponse{
		Bucket:    task.Bucket,
		ObjectKey: task.ObjectKey,
		Size:      info.Size(),
	})
}

// validateTask applies the agent's task guards. Returns a zero status
// when the task is acceptable.
func (s *server) validateTask(task publish.Task) (int, string) {
	if task.Bucket == "" || task.ObjectKey == "" || task.FilePath == "" {
		return http.StatusBadRequest, "bucket, object_key and file_path are required"
	}

	if err := storage.ValidateBucketName(task.Bucket); err != nil {
		return http.StatusBadRequest, err.Error()
	}

	if !filepath.IsAbs(task.FilePath) {
		return http.StatusBadRequest, "file_path must be absolute"
	}

	if task.Endpoint != s.gateway.Endpoint() {
		return http.StatusConflict, "task endpoint does not match the agent storage endpoint"
	}

	if s.cfg.Workspace != "" {
		rel, err := filepath.Rel(s.cfg.Workspace, task.FilePath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return http.StatusForbidden, "file path is outside the agent workspace"
		}
	}

	return 0, ""
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
