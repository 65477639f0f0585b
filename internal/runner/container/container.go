// Package container implements the container Action Runner strategy
// (§4.4): it materializes a component's inputs into an isolated
// tenant+run-scoped volume, runs the component's image, and applies the
// recon-tool partial-success policy on non-zero exit.
package container

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/execctx"
	"github.com/flowforge/orchestrator/internal/model"
)

// Strategy runs components whose Runner.Kind is model.RunnerContainer using
// a Docker Engine API client.
type Strategy struct {
	docker *client.Client
	// TenantFn extracts the tenant id used in the volume name
	// tenantId_runId_random. Defaults to a constant "default" tenant when
	// nil, since the distilled spec leaves multi-tenancy partitioning to
	// the caller.
	TenantFn func(ec *execctx.Context) string
}

// New constructs a Strategy backed by a Docker client configured from the
// environment (DOCKER_HOST and friends), matching the client's standard
// FromEnv convention.
func New(docker *client.Client) *Strategy {
	return &Strategy{docker: docker}
}

// Run implements runner.Strategy.
func (s *Strategy) Run(ctx context.Context, def model.ComponentDefinition, ec *execctx.Context, params map[string]any) (map[string]any, error) {
	cfg := def.Runner.Container
	if cfg == nil {
		return nil, apierr.New(apierr.KindConfiguration, "component %q has no container runner config", def.ID).
			WithField("configKey", "runner.container")
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tenant := "default"
	if s.TenantFn != nil {
		tenant = s.TenantFn(ec)
	}
	volumeName, err := s.createVolume(runCtx, tenant, ec.RunID())
	if err != nil {
		return nil, apierr.Wrap(apierr.KindContainer, err, "create volume for %s", ec.ComponentRef())
	}
	defer s.removeVolume(context.Background(), volumeName)

	if err := writeParams(runCtx, s.docker, volumeName, params); err != nil {
		return nil, apierr.Wrap(apierr.KindContainer, err, "materialize inputs for %s", ec.ComponentRef())
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	resp, err := s.docker.ContainerCreate(runCtx, &container.Config{
		Image:      cfg.Image,
		Entrypoint: cfg.Entrypoint,
		Cmd:        cfg.Command,
		Env:        env,
		Tty:        false,
	}, &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeVolume, Source: volumeName, Target: "/work"},
		},
		NetworkMode: container.NetworkMode(cfg.Network),
	}, nil, nil, "")
	if err != nil {
		return nil, apierr.Wrap(apierr.KindContainer, err, "create container for %s", ec.ComponentRef())
	}
	containerID := resp.ID
	defer s.removeContainer(context.Background(), containerID)

	if err := s.docker.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return nil, apierr.Wrap(apierr.KindContainer, err, "start container for %s", ec.ComponentRef())
	}

	statusCh, errCh := s.docker.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return nil, apierr.Wrap(apierr.KindTimeout, err, "wait for container running %s", ec.ComponentRef())
		}
	case st := <-statusCh:
		exitCode = st.StatusCode
	}

	stdout, stderr, err := s.collectLogs(context.Background(), containerID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindContainer, err, "collect logs for %s", ec.ComponentRef())
	}

	if exitCode != 0 {
		if cfg.PartialSuccessOnNonEmptyStdout && len(stdout) > 0 {
			ec.EmitProgressDetailed(ctx, execctx.Progress{
				Message: fmt.Sprintf("container exited %d with output; returning partial results", exitCode),
				Level:   execctx.ProgressWarn,
			})
			return map[string]any{"stdout": string(stdout), "partial": true, "exitCode": exitCode}, nil
		}
		return nil, apierr.New(apierr.KindContainer, "container exited with code %d", exitCode).
			WithField("exitCode", exitCode).
			WithField("stderr", string(stderr))
	}

	return map[string]any{"stdout": string(stdout)}, nil
}

func (s *Strategy) createVolume(ctx context.Context, tenantID, runID string) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	// Docker volume names are restricted to [a-zA-Z0-9][a-zA-Z0-9_.-]; a
	// colon separator is rejected by the Engine, so join with "_" instead.
	name := fmt.Sprintf("%s_%s_%s", tenantID, runID, suffix)
	if _, err := s.docker.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Strategy) removeVolume(ctx context.Context, name string) {
	_ = s.docker.VolumeRemove(ctx, name, true)
}

func (s *Strategy) removeContainer(ctx context.Context, id string) {
	_ = s.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (s *Strategy) collectLogs(ctx context.Context, id string) (stdout, stderr []byte, err error) {
	rc, err := s.docker.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, rc); err != nil && err != io.EOF {
		return nil, nil, err
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

func writeParams(ctx context.Context, docker *client.Client, volumeName string, params map[string]any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}
	// Materializing params into the volume requires a short-lived helper
	// container since the Docker Engine API has no direct "write file to
	// volume" call; busybox is the smallest widely cached image for it.
	resp, err := docker.ContainerCreate(ctx, &container.Config{
		Image:     "busybox:stable",
		Cmd:       []string{"sh", "-c", "cat > /work/input.json"},
		OpenStdin: true,
		StdinOnce: true,
	}, &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeVolume, Source: volumeName, Target: "/work"}},
	}, nil, nil, "")
	if err != nil {
		return err
	}
	defer docker.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	attach, err := docker.ContainerAttach(ctx, resp.ID, container.AttachOptions{Stream: true, Stdin: true})
	if err != nil {
		return err
	}
	if err := docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		attach.Close()
		return err
	}
	if _, err := attach.Conn.Write(payload); err != nil {
		attach.Close()
		return err
	}
	attach.CloseWrite()
	attach.Close()

	statusCh, errCh := docker.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return err
	case <-statusCh:
	}
	return nil
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
