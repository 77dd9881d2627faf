package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/raysh454/scanhub/internal/logging"
)

// containerReportsDir is where the host reports directory is mounted.
const containerReportsDir = "/reports"

// logFetchTimeout bounds reading a container's output once it has stopped
// or been cut off.
const logFetchTimeout = 10 * time.Second

// logSource is the part of the docker client that collectLogs reads from.
type logSource interface {
	ContainerLogs(ctx context.Context, container string, options container.LogsOptions) (io.ReadCloser, error)
}

// DockerRunner runs a tool inside a throwaway, resource-limited container.
type DockerRunner struct {
	cli        *client.Client
	image      string
	reportsDir string
	cfg        DockerConfig
	env        []string
	logger     logging.Logger
}

var (
	_ Runner    = (*DockerRunner)(nil)
	_ logSource = (*client.Client)(nil)
)

// NewDockerClient connects to the daemon described by the DOCKER_* env vars.
func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
}

func NewDockerRunner(cli *client.Client, image, reportsDir string, cfg DockerConfig, env []string, logger logging.Logger) (*DockerRunner, error) {
	if cli == nil {
		return nil, fmt.Errorf("docker client is nil")
	}
	if image == "" {
		return nil, fmt.Errorf("docker image is required")
	}
	return &DockerRunner{
		cli:        cli,
		image:      image,
		reportsDir: reportsDir,
		cfg:        cfg,
		env:        env,
		logger:     logger.With(logging.Field{Key: "runtime", Value: "docker"}),
	}, nil
}

func (r *DockerRunner) hostConfig() *container.HostConfig {
	hc := &container.HostConfig{
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		NetworkMode:    container.NetworkMode(r.cfg.NetworkMode),
		Binds:          []string{r.reportsDir + ":" + containerReportsDir},
		Tmpfs:          map[string]string{"/tmp": "rw,size=256m"},
	}
	hc.Resources.Memory = r.cfg.MemoryBytes
	hc.Resources.NanoCPUs = r.cfg.NanoCPUs
	if r.cfg.PidsLimit > 0 {
		pids := r.cfg.PidsLimit
		hc.Resources.PidsLimit = &pids
	}
	return hc
}

func (r *DockerRunner) Run(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	resp, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      r.image,
			Cmd:        argv,
			User:       r.cfg.User,
			Env:        r.env,
			WorkingDir: containerReportsDir,
		},
		r.hostConfig(),
		nil,
		nil,
		"",
	)
	if err != nil {
		return -1, fmt.Errorf("create container: %w", err)
	}

	// Force-remove also kills a container still running after a timeout.
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("failed to remove scanner container",
				logging.Field{Key: "container_id", Value: resp.ID},
				logging.Err(err))
		}
	}()

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return -1, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case <-ctx.Done():
		r.collectLogs(ctx, r.cli, resp.ID, stdout, stderr)
		return -1, ctx.Err()
	case err := <-errCh:
		if ctx.Err() != nil {
			r.collectLogs(ctx, r.cli, resp.ID, stdout, stderr)
			return -1, ctx.Err()
		}
		return -1, fmt.Errorf("wait container: %w", err)
	case st := <-statusCh:
		if st.Error != nil {
			return -1, errors.New(st.Error.Message)
		}
		exitCode = int(st.StatusCode)
	}

	r.collectLogs(ctx, r.cli, resp.ID, stdout, stderr)
	return exitCode, nil
}

// collectLogs demuxes whatever the container has written so far into
// stdout and stderr. It reads on a context detached from ctx so a run cut
// off by its deadline still reports its output; the deferred force-remove
// in Run happens after.
func (r *DockerRunner) collectLogs(ctx context.Context, src logSource, id string, stdout, stderr io.Writer) {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logFetchTimeout)
	defer cancel()

	logs, err := src.ContainerLogs(logCtx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		r.logger.Warn("failed to fetch container logs",
			logging.Field{Key: "container_id", Value: id},
			logging.Err(err))
		return
	}
	defer logs.Close()
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		r.logger.Warn("failed to demux container logs",
			logging.Field{Key: "container_id", Value: id},
			logging.Err(err))
	}
}
