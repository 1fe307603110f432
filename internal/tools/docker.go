package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
)

// DockerConfig controls the containerized runtime.
type DockerConfig struct {
	Image   string // e.g. "ubuntu:24.04"
	WorkDir string // host directory mounted at /workspace
	Memory  string // e.g. "1g"
	CPUs    int64
}

// DockerRuntime runs each tool command in a throwaway container with
// the configured work directory mounted at /workspace.
type DockerRuntime struct {
	client *client.Client
	config DockerConfig
}

// NewDockerRuntime builds the runtime and verifies the daemon answers.
func NewDockerRuntime(config DockerConfig) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon not accessible: %w", err)
	}
	if config.Image == "" {
		config.Image = "ubuntu:24.04"
	}
	if config.CPUs <= 0 {
		config.CPUs = 2
	}
	return &DockerRuntime{client: cli, config: config}, nil
}

func (r *DockerRuntime) Run(ctx context.Context, cmd []string, stdin string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := r.ensureImage(ctx, r.config.Image); err != nil {
		return "", fmt.Errorf("failed to ensure image %s: %w", r.config.Image, err)
	}

	// Containers get no stdin stream; feed input through the command
	// line instead, base64-wrapped so arbitrary content survives.
	if stdin != "" {
		encoded := base64.StdEncoding.EncodeToString([]byte(stdin))
		cmd = append([]string{"sh", "-c", `echo ` + encoded + ` | base64 -d | "$@"`, "sh"}, cmd...)
	}

	containerConfig := &container.Config{
		Image:      r.config.Image,
		Cmd:        cmd,
		WorkingDir: "/workspace",
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:   r.memoryBytes(),
			NanoCPUs: r.config.CPUs * 1e9,
			Ulimits:  []*units.Ulimit{{Name: "nofile", Soft: 1024, Hard: 1024}},
		},
		SecurityOpt: []string{"no-new-privileges"},
	}
	if r.config.WorkDir != "" {
		absDir, err := filepath.Abs(r.config.WorkDir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve work dir: %w", err)
		}
		hostConfig.Mounts = []mount.Mount{{
			Type:   mount.TypeBind,
			Source: absDir,
			Target: "/workspace",
		}}
	}

	createResp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		return "", fmt.Errorf("command timed out after %s", timeout)
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("container wait error: %w", err)
		}
	case <-statusCh:
	}

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	})
	if err != nil {
		return "", fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	return demuxLogs(logs), nil
}

func (r *DockerRuntime) memoryBytes() int64 {
	if r.config.Memory == "" {
		return 1 << 30
	}
	n, err := units.RAMInBytes(r.config.Memory)
	if err != nil {
		return 1 << 30
	}
	return n
}

func (r *DockerRuntime) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// demuxLogs strips the 8-byte multiplexing headers Docker prefixes to
// each log frame and interleaves both streams in arrival order.
func demuxLogs(reader io.Reader) string {
	var b strings.Builder
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			break
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size <= 0 || size > 10*1024*1024 {
			continue
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			break
		}
		b.Write(payload)
	}
	return b.String()
}
