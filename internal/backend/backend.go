package backend

import (
	"context"
	"errors"
)

var ErrInstanceNotFound = errors.New("backend instance not found")

// LaunchSpec is a fully resolved, isolated-process invocation.
type LaunchSpec struct {
	Name      string   // instance name, unique per job
	Image     string   // execution environment
	User      string   // uid:gid the process runs as
	Command   []string // argv inside the environment
	Binds     []string // host:container[:mode] mounts
	CPUSet    string   // cores the process is pinned to
	GPUDevice *int     // only this device is visible when set
}

// Backend starts instances without waiting for them.
type Backend interface {
	// Launch submits spec and returns as soon as the instance is started.
	//
	// A non-nil Handle may come back together with an error: the submission
	// failed but the instance can still be polled for its real outcome.
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)
}

// Handle is the opaque capability to one launched instance.
type Handle interface {
	Name() string
	// IsTerminal polls the backend; it never blocks on the instance itself.
	IsTerminal(ctx context.Context) (bool, error)
	ExitStatus(ctx context.Context) (int, error)
	FetchLogs(ctx context.Context) ([]byte, error)
	// Dispose removes the instance from the backend's resource table.
	Dispose(ctx context.Context) error
}
