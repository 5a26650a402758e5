package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/google/uuid"

	"github.com/northcutted/dock-lens/pkg/metrics"
)

// BuildImagePrefix names images built for a build-and-scan.
const BuildImagePrefix = "dock-lens-build-and-scan-"

// NewBuildImageName returns a unique, lower case tag for a temporary build.
func NewBuildImageName() string {
	return BuildImagePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// BuildOptions describes a docker build.
type BuildOptions struct {
	Dockerfile string
	ContextDir string
	Tag        string
	BuildArgs  map[string]string
}

// Args builds the `docker build` argument list.
func (o BuildOptions) Args() []string {
	args := []string{"build", "-t", o.Tag, "-f", o.Dockerfile}
	keys := make([]string, 0, len(o.BuildArgs))
	for k := range o.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+o.BuildArgs[k])
	}
	return append(args, o.ContextDir)
}

type dockerAPI interface {
	Ping(ctx context.Context) (dockertypes.Ping, error)
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImageRemove(ctx context.Context, imageID string, opts image.RemoveOptions) ([]image.DeleteResponse, error)
	Close() error
}

// DockerBuilder builds images with the docker CLI and inspects or removes
// them through the Engine API.
type DockerBuilder struct {
	Metrics *metrics.Recorder

	binary    string
	newClient func() (dockerAPI, error)
}

// NewDockerBuilder returns a builder using the environment's docker host.
func NewDockerBuilder(m *metrics.Recorder) *DockerBuilder {
	return &DockerBuilder{
		Metrics: m,
		newClient: func() (dockerAPI, error) {
			return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		},
	}
}

// Name returns the display name for this runner.
func (b *DockerBuilder) Name() string { return "docker" }

// IsAvailable checks that the docker CLI is installed and the daemon answers.
func (b *DockerBuilder) IsAvailable(ctx context.Context) bool {
	path, err := exec.LookPath("docker")
	if err != nil {
		return false
	}
	b.binary = path

	cli, err := b.newClient()
	if err != nil {
		slog.Debug("failed to create docker client", "error", err)
		return false
	}
	defer func() { _ = cli.Close() }()

	ctx, cancel := context.WithTimeout(ctx, TimeoutInspect)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		slog.Debug("docker daemon not reachable", "error", err)
		return false
	}
	return true
}

// Build runs `docker build` for opts.
func (b *DockerBuilder) Build(ctx context.Context, opts BuildOptions) (err error) {
	started := time.Now()
	defer func() { b.Metrics.ObserveScan(metrics.KindBuild, started, err) }()

	binary := b.binary
	if binary == "" {
		binary = "docker"
	}
	runCtx, cancel := context.WithTimeout(ctx, TimeoutBuild)
	defer cancel()

	slog.Info("building image", "tag", opts.Tag, "dockerfile", opts.Dockerfile)
	cmd := exec.CommandContext(runCtx, binary, opts.Args()...)
	if _, err := runCommand(cmd); err != nil {
		return fmt.Errorf("failed to build image %s: %w", opts.Tag, err)
	}
	return nil
}

// Exists reports whether the image is present locally.
func (b *DockerBuilder) Exists(ctx context.Context, name string) bool {
	cli, err := b.newClient()
	if err != nil {
		return false
	}
	defer func() { _ = cli.Close() }()

	ctx, cancel := context.WithTimeout(ctx, TimeoutInspect)
	defer cancel()
	_, err = cli.ImageInspect(ctx, name)
	return err == nil
}

// Remove deletes the image and its untagged parents, and drops its metrics.
func (b *DockerBuilder) Remove(ctx context.Context, name string) error {
	cli, err := b.newClient()
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer func() { _ = cli.Close() }()

	ctx, cancel := context.WithTimeout(ctx, TimeoutInspect)
	defer cancel()
	if _, err := cli.ImageRemove(ctx, name, image.RemoveOptions{Force: true, PruneChildren: true}); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", name, err)
	}
	b.Metrics.Forget(name)
	slog.Debug("removed image", "image", name)
	return nil
}
