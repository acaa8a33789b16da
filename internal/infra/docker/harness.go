// Package docker runs computational chemistry programs inside containers via
// the official Docker SDK. The scratch workspace is bind-mounted into the
// container so input and output files move without copying.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/sync/errgroup"

	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/ports"
)

// containerWorkdir is where the scratch workspace is mounted inside the
// container.
const containerWorkdir = "/qcop"

// Config describes one container harness.
type Config struct {
	// Image is the container image carrying the program.
	Image string

	// NanoCPUs caps container CPU. Zero means no cap.
	NanoCPUs int64

	// MemoryBytes caps container memory. Zero means no cap.
	MemoryBytes int64
}

// Harness runs programs inside containers of a single image. The image is
// pulled once, on first use.
type Harness struct {
	cli      dockerClient
	cfg      Config
	pullOnce sync.Once
	pullErr  error
}

var _ ports.Harness = (*Harness)(nil)

// New builds a harness from the environment's Docker configuration.
func New(cfg Config) (*Harness, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("docker harness requires an image")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Harness{cli: cli, cfg: cfg}, nil
}

// Close releases the underlying Docker client resources.
func (h *Harness) Close() error {
	if h.cli == nil {
		return nil
	}
	return h.cli.Close()
}

// Run executes prog in a fresh container, streaming merged stdout/stderr to
// prog.Output as the program runs. The exit code is returned as-is; errors
// follow the harness contract.
func (h *Harness) Run(ctx context.Context, prog ports.Program) (int, error) {
	if prog.Dir == "" {
		return 0, calc.NewComputeError(prog.Command, calc.ErrSubprocess,
			"docker harness requires a working directory to mount", nil)
	}
	if err := h.ensureImage(ctx); err != nil {
		return 0, calc.NewComputeError(prog.Command, calc.ErrSubprocess, err.Error(), err)
	}

	hostConfig := &container.HostConfig{
		Binds: []string{prog.Dir + ":" + containerWorkdir},
	}
	if h.cfg.NanoCPUs > 0 {
		hostConfig.Resources.NanoCPUs = h.cfg.NanoCPUs
	}
	if h.cfg.MemoryBytes > 0 {
		hostConfig.Resources.Memory = h.cfg.MemoryBytes
		hostConfig.Resources.MemorySwap = h.cfg.MemoryBytes
	}

	resp, err := h.cli.ContainerCreate(ctx, &container.Config{
		Image:      h.cfg.Image,
		Cmd:        append([]string{prog.Command}, prog.Args...),
		WorkingDir: containerWorkdir,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return 0, classify(prog.Command, "create container", err)
	}
	defer func() {
		_ = h.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := h.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return 0, classify(prog.Command, "start container", err)
	}

	logs, err := h.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return 0, calc.NewComputeError(prog.Command, calc.ErrSubprocess, "attach logs: "+err.Error(), err)
	}

	var pump errgroup.Group
	pump.Go(func() error {
		defer logs.Close()
		// The container's demuxed streams merge into one observer channel.
		_, err := stdcopy.StdCopy(prog.Output, prog.Output, logs)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	})

	waitCtx := ctx
	var cancel context.CancelFunc
	if prog.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, prog.Timeout)
		defer cancel()
	}

	status, err := h.waitForExit(waitCtx, resp.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && prog.Timeout > 0 && ctx.Err() == nil {
			h.stopAfterTimeout(resp.ID)
			_ = pump.Wait()
			return 0, calc.NewComputeError(prog.Command, calc.ErrTimeout,
				fmt.Sprintf("%s timed out after %s", prog.Command, prog.Timeout), waitCtx.Err())
		}
		_ = pump.Wait()
		return 0, calc.NewComputeError(prog.Command, calc.ErrSubprocess, err.Error(), err)
	}

	if err := pump.Wait(); err != nil {
		return 0, calc.NewComputeError(prog.Command, calc.ErrSubprocess, "stream logs: "+err.Error(), err)
	}
	return int(status.StatusCode), nil
}

func (h *Harness) ensureImage(ctx context.Context) error {
	h.pullOnce.Do(func() {
		reader, err := h.cli.ImagePull(ctx, h.cfg.Image, image.PullOptions{})
		if err != nil {
			h.pullErr = fmt.Errorf("pull image %s: %w", h.cfg.Image, err)
			return
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			h.pullErr = fmt.Errorf("consume pull output: %w", err)
		}
	})
	return h.pullErr
}

func (h *Harness) stopAfterTimeout(containerID string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.cli.ContainerStop(stopCtx, containerID, container.StopOptions{})
}

func (h *Harness) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := h.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

// classify maps Docker daemon errors onto the harness error kinds. A missing
// executable inside the image surfaces as program-not-found, anything else as
// a subprocess failure.
func classify(program, action string, err error) error {
	if strings.Contains(err.Error(), "executable file not found") {
		return calc.NewComputeError(program, calc.ErrProgramNotFound,
			fmt.Sprintf("Program not found in container image: %q.", program), err)
	}
	return calc.NewComputeError(program, calc.ErrSubprocess, action+": "+err.Error(), err)
}
