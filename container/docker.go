package container

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/tlsconfig"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker is the production Runtime, backed by the Docker SDK client
// rather than shelling out to the docker CLI. Spec §6 permits this
// substitution as long as the bind-mount and host-path-rewrite
// semantics are preserved bit-for-bit, which buildHostConfig and
// rewriteCommand below do.
type Docker struct {
	cli *client.Client
}

// DockerOption configures NewDocker.
type DockerOption func(*dockerOptions)

type dockerOptions struct {
	host     string
	certPath string
}

// WithHost overrides the Docker daemon address (defaults to the
// DOCKER_HOST environment variable / the local socket).
func WithHost(host string) DockerOption {
	return func(o *dockerOptions) { o.host = host }
}

// WithTLSCertPath configures a TLS client certificate directory
// (cert.pem/key.pem/ca.pem), for connecting to a remote daemon over
// TLS — the same certificate-directory convention the docker CLI uses.
func WithTLSCertPath(path string) DockerOption {
	return func(o *dockerOptions) { o.certPath = path }
}

// NewDocker constructs a Docker runtime. With no options it connects to
// the local daemon via the environment (DOCKER_HOST, DOCKER_TLS_VERIFY,
// DOCKER_CERT_PATH), matching `docker` CLI behavior.
func NewDocker(opts ...DockerOption) (*Docker, error) {
	var o dockerOptions
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if o.host != "" {
		clientOpts = append(clientOpts, client.WithHost(o.host))
	}
	if o.certPath != "" {
		tlsCfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   o.certPath + "/ca.pem",
			CertFile: o.certPath + "/cert.pem",
			KeyFile:  o.certPath + "/key.pem",
		})
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
		clientOpts = append(clientOpts, client.WithHTTPClient(&http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}))
	}

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) ImageExists(ctx context.Context, img string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, img)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect image %s: %w", img, err)
}

func (d *Docker) Pull(ctx context.Context, img string) error {
	rc, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (d *Docker) EnsureAvailable(ctx context.Context, img string) error {
	return ensureAvailable(ctx, d, img)
}

var memoryRegexp = regexp.MustCompile(`^(\d+)([MGT])$`)

// memoryBytes converts a spec §3 memory quantity ("512M", "2G", "1T")
// into bytes, as the Docker SDK's container.Resources.Memory expects.
func memoryBytes(s string) (int64, error) {
	m := memoryRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid memory quantity %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, err
	}
	var unit int64
	switch m[2] {
	case "M":
		unit = 1 << 20
	case "G":
		unit = 1 << 30
	case "T":
		unit = 1 << 40
	}
	return n * unit, nil
}

// rewriteCommand replaces every literal occurrence of runDir in command
// with "/data", the bind-mount target inside the container, so commands
// may be authored using host paths and still resolve inside the
// container. This is the exact transformation spec §4.5/§6 mandate.
func rewriteCommand(command, runDir string) string {
	return strings.ReplaceAll(command, runDir, "/data")
}

func (d *Docker) Run(ctx context.Context, req RunRequest) (int, error) {
	memBytes, err := memoryBytes(req.Resources.Memory)
	if err != nil {
		return 0, fmt.Errorf("resources.memory: %w", err)
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = "/data"
	}

	binds := []string{req.RunDir + ":/data"}
	for host, cont := range req.Volumes {
		binds = append(binds, host+":"+cont)
	}

	shellCommand := rewriteCommand(req.Command, req.RunDir)

	containerCfg := &container.Config{
		Image:      req.Image,
		Cmd:        []string{"sh", "-c", shellCommand},
		WorkingDir: workingDir,
	}
	hostCfg := &container.HostConfig{
		Binds:      binds,
		AutoRemove: false, // we remove explicitly after capturing the exit code
		Resources: container.Resources{
			NanoCPUs: int64(req.Resources.CPU) * 1_000_000_000,
			Memory:   memBytes,
		},
	}

	created, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, (*ocispec.Platform)(nil), "")
	if err != nil {
		return 0, fmt.Errorf("create container: %w", err)
	}
	containerID := created.ID // captured at launch — see DESIGN.md on the container-ID discovery heuristic

	defer func() {
		_ = d.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("start container: %w", err)
	}

	go d.streamLogs(containerID, req)

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Resources.TimeLimit > 0 {
		runCtx, cancel = contextWithTimeout(ctx, req.Resources.TimeLimit)
		defer cancel()
	}

	waitCh, errCh := d.cli.ContainerWait(runCtx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if runCtx.Err() != nil {
			_ = d.cli.ContainerKill(context.Background(), containerID, "KILL")
			return ExitTimeout, nil
		}
		return 0, fmt.Errorf("wait container: %w", err)
	case result := <-waitCh:
		return int(result.StatusCode), nil
	case <-runCtx.Done():
		_ = d.cli.ContainerKill(context.Background(), containerID, "KILL")
		return ExitTimeout, nil
	}
}

func (d *Docker) streamLogs(containerID string, req RunRequest) {
	rc, err := d.cli.ContainerLogs(context.Background(), containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return
	}
	defer rc.Close()

	if req.Log != nil {
		_, _ = stdcopy.StdCopy(req.Log, req.Log, rc)
		return
	}
	if req.StreamFunc != nil {
		pr, pw := io.Pipe()
		go func() {
			_, _ = stdcopy.StdCopy(pw, pw, rc)
			pw.Close()
		}()
		scanLines(pr, req.StreamFunc)
	}
}

// scanLines feeds each line read from r to fn, discarding the trailing
// newline, until r is exhausted.
func scanLines(r io.Reader, fn func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}

// contextWithTimeout derives a child context bounded by d, used to drive
// the post-timeout kill sequence rather than relying on the caller's ctx
// alone.
func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
