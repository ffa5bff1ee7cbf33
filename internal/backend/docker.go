package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// exit status reported for instances that vanished or never started
const MissingExitStatus = -1

// containerAPI is the part of the docker client the backend needs.
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

type DockerBackend struct {
	api    containerAPI
	logger *zap.Logger
}

type DockerBackendParams struct {
	fx.In

	Lc     fx.Lifecycle
	Logger *zap.Logger
}

// NewDockerBackend connects to the docker daemon configured by the environment (DOCKER_HOST etc).
func NewDockerBackend(p DockerBackendParams) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		p.Logger.Error("failed to create docker client", zap.Error(err))
		return nil, err
	}

	b := newDockerBackend(cli, p.Logger)
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return b.api.Close()
		},
	})
	return b, nil
}

func newDockerBackend(api containerAPI, logger *zap.Logger) *DockerBackend {
	return &DockerBackend{api: api, logger: logger.Named("docker")}
}

// Launch is the equivalent of `docker run -d`: create, then start, never wait.
func (b *DockerBackend) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	handle := &dockerHandle{api: b.api, name: spec.Name}

	containerCfg := &container.Config{
		Image: spec.Image,
		User:  spec.User,
		Cmd:   spec.Command,
	}
	hostCfg := &container.HostConfig{
		Binds: spec.Binds,
		Resources: container.Resources{
			CpusetCpus: spec.CPUSet,
		},
	}
	if spec.GPUDevice != nil {
		hostCfg.Resources.DeviceRequests = []container.DeviceRequest{{
			DeviceIDs:    []string{strconv.Itoa(*spec.GPUDevice)},
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	b.logger.Debug("creating container",
		zap.String("name", spec.Name),
		zap.String("image", spec.Image),
		zap.Strings("command", spec.Command),
		zap.String("cpuset", spec.CPUSet),
	)

	resp, err := b.api.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		handle.launchFailed = true
		if errdefs.IsConflict(err) {
			// the handle resolves by name, so it now follows the older container
			b.logger.Error("container name already in use, tracking the existing container",
				zap.String("name", spec.Name), zap.Error(err))
		}
		return handle, fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	for _, warning := range resp.Warnings {
		b.logger.Warn("docker create warning", zap.String("name", spec.Name), zap.String("warning", warning))
	}
	handle.id = resp.ID

	if err := b.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		handle.launchFailed = true
		return handle, fmt.Errorf("start container %s: %w", spec.Name, err)
	}
	return handle, nil
}

type dockerHandle struct {
	api  containerAPI
	name string
	id   string

	launchFailed bool
	// last state observed by IsTerminal
	missing  bool
	status   string
	exitCode int
}

func (h *dockerHandle) Name() string { return h.name }

// ref addresses the container by id when known, by name otherwise.
func (h *dockerHandle) ref() string {
	if h.id != "" {
		return h.id
	}
	return h.name
}

func (h *dockerHandle) inspect(ctx context.Context) error {
	info, err := h.api.ContainerInspect(ctx, h.ref())
	if errdefs.IsNotFound(err) {
		h.missing = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect container %s: %w", h.name, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return fmt.Errorf("inspect container %s: no state reported", h.name)
	}
	h.missing = false
	h.status = info.State.Status
	h.exitCode = info.State.ExitCode
	return nil
}

func (h *dockerHandle) IsTerminal(ctx context.Context) (bool, error) {
	if err := h.inspect(ctx); err != nil {
		return false, err
	}
	if h.missing {
		return true, nil
	}
	switch h.status {
	case "exited", "dead":
		return true, nil
	case "running", "restarting", "paused":
		return false, nil
	}
	// "created"/"removing": only terminal when the submission itself failed
	return h.launchFailed, nil
}

func (h *dockerHandle) ExitStatus(ctx context.Context) (int, error) {
	if h.status == "" && !h.missing {
		if err := h.inspect(ctx); err != nil {
			return MissingExitStatus, err
		}
	}
	if h.missing {
		return MissingExitStatus, fmt.Errorf("%w: %s", ErrInstanceNotFound, h.name)
	}
	if h.launchFailed && h.status == "created" {
		return MissingExitStatus, nil
	}
	return h.exitCode, nil
}

func (h *dockerHandle) FetchLogs(ctx context.Context) ([]byte, error) {
	if h.missing {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, h.name)
	}
	rc, err := h.api.ContainerLogs(ctx, h.ref(), container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("logs of container %s: %w", h.name, err)
	}
	defer rc.Close()

	// non-tty containers multiplex stdout and stderr on one stream
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return buf.Bytes(), fmt.Errorf("demultiplex logs of container %s: %w", h.name, err)
	}
	return buf.Bytes(), nil
}

func (h *dockerHandle) Dispose(ctx context.Context) error {
	if err := h.api.ContainerRemove(ctx, h.ref(), container.RemoveOptions{}); err != nil {
		return fmt.Errorf("remove container %s: %w", h.name, err)
	}
	return nil
}
