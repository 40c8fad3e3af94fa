package publish

import (
	"context"
	"fmt"
	"os"

	"github.com/ethpandaops/artifactoor/pkg/storage"
)

// Task is one self-contained unit of upload work: everything needed to
// read one local file and store it as one object, with no reference to
// orchestrator in-memory state, so it can execute in-process or on a
// remote agent. Credentials never travel with a Task; the executing
// side supplies its own gateway, and Endpoint only guards against a
// task landing on an agent wired to a different storage target.
type Task struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
	FilePath  string `json:"file_path"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// Dispatcher executes upload tasks wherever the files physically live.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// LocalDispatcher executes tasks in-process against a storage gateway.
type LocalDispatcher struct {
	Gateway storage.Gateway
}

// Ensure interface compliance.
var _ Dispatcher = (*LocalDispatcher)(nil)

func (d *LocalDispatcher) Dispatch(ctx context.Context, task Task) error {
	return ExecuteTask(ctx, d.Gateway, task)
}

// ExecuteTask opens the task's file and streams it to the gateway. It
// is the single execution path shared by the local dispatcher and the
// remote agent.
func ExecuteTask(ctx context.Context, gw storage.Gateway, task Task) error {
	f, err := os.Open(task.FilePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", task.FilePath, err)
	}

	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating %s: %w", task.FilePath, err)
	}

	return gw.PutObject(ctx, task.Bucket, task.ObjectKey, f, info.Size())
}
