// Package container provides Docker container management for per-user
// agent containers.
package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/store"
)

const (
	workspaceMount = "/workspace"

	defaultStopTimeoutSecs = 10

	createRetryAttempts = 20
	createRetryDelay    = 250 * time.Millisecond
)

// Sentinel errors surfaced by the manager. Callers wrap or match with
// errors.Is.
var (
	ErrCreateFailed   = errors.New("container create failed")
	ErrStartupTimeout = errors.New("container startup timeout")
	ErrNotFound       = errors.New("container not found")
)

// Manager defines the interface for managing per-user agent containers.
type Manager interface {
	// GetOrCreate returns the user's running container, creating and
	// starting one if needed. Idempotent and safe for concurrent calls.
	GetOrCreate(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error)

	// Create unconditionally creates and starts a container for the user.
	Create(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error)

	// Exec runs a one-shot command in the user's container and returns the
	// exec ID and the attached duplex stream.
	Exec(ctx context.Context, userID string, cmd []string, opts ExecOptions) (string, Stream, error)

	// AttachShell creates an interactive TTY exec positioned in the given
	// working directory.
	AttachShell(ctx context.Context, userID string, opts ShellOptions) (string, Stream, error)

	// ResizeExec resizes a running TTY exec.
	ResizeExec(ctx context.Context, execID string, cols, rows uint) error

	// Stop stops the user's container. Stopping an already-stopped
	// container is success.
	Stop(ctx context.Context, userID string, timeoutSecs int) error

	// Start starts a stopped container.
	Start(ctx context.Context, userID string) error

	// Destroy stops and removes the user's container. removeVolume also
	// deletes the per-user host data directory.
	Destroy(ctx context.Context, userID string, removeVolume bool) error

	// Stats returns a point-in-time resource usage snapshot.
	Stats(ctx context.Context, userID string) (*domain.ContainerStats, error)

	// ListAll returns all cached container records.
	ListAll() []*domain.ContainerInfo

	// GetByUser returns the cached record for a user, if any.
	GetByUser(userID string) (*domain.ContainerInfo, bool)

	// TouchActivity records user activity for the idle reaper.
	TouchActivity(userID string)

	// EnsureNetwork creates the managed bridge network if it doesn't exist.
	EnsureNetwork(ctx context.Context) (string, error)

	// Reconcile aligns registry records with the live runtime. Invoked once
	// per process start.
	Reconcile(ctx context.Context) error

	// Client returns the underlying Docker client.
	Client() *client.Client

	Close() error
}

// DockerManager implements Manager using the Docker API.
type DockerManager struct {
	cli      *client.Client
	cfg      *config.Config
	registry store.Registry

	mu    sync.Mutex
	cache map[string]*domain.ContainerInfo // userID -> info

	// per-user creation locks so concurrent GetOrCreate calls yield one
	// container
	userLocks sync.Map
}

// NewDockerManager creates a new Docker-backed container manager.
// Docker connection settings come from the environment (DOCKER_HOST,
// DOCKER_CERT_PATH).
func NewDockerManager(cfg *config.Config, registry store.Registry) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker client initialized", "image", cfg.Image, "network", cfg.Network)
	return &DockerManager{
		cli:      cli,
		cfg:      cfg,
		registry: registry,
		cache:    make(map[string]*domain.ContainerInfo),
	}, nil
}

func (m *DockerManager) userLock(userID string) *sync.Mutex {
	lock, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// GetOrCreate returns the user's running container, creating one if needed.
func (m *DockerManager) GetOrCreate(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Fast path: cached and still running.
	if info, ok := m.cachedInfo(userID); ok && info.IsRunning() {
		m.touchLocked(info)
		return info, nil
	}

	// Check the live runtime by deterministic name.
	name := domain.ContainerName(userID)
	inspect, err := m.cli.ContainerInspect(ctx, name)
	if err == nil {
		if inspect.State != nil && inspect.State.Running {
			info := m.adopt(userID, inspect.ID, name, tierFromLabels(inspect.Config.Labels, tier))
			slog.Info("Adopted running container", "container_id", info.ContainerID, "user_id", userID)
			return info, nil
		}

		slog.Info("Restarting stopped container", "container_id", inspect.ID, "user_id", userID)
		if startErr := m.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); startErr == nil {
			if readyErr := m.waitReady(ctx, inspect.ID); readyErr == nil {
				info := m.adopt(userID, inspect.ID, name, tierFromLabels(inspect.Config.Labels, tier))
				return info, nil
			}
		}
		// Unstartable leftover: recycle it below.
		slog.Warn("Stopped container could not be restarted, recreating", "container_id", inspect.ID, "user_id", userID)
		if removeErr := m.cli.ContainerRemove(ctx, inspect.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errdefs.IsNotFound(removeErr) {
			slog.Warn("Failed to remove unstartable container", "container_id", inspect.ID, "error", removeErr)
		}
	} else if !errdefs.IsNotFound(err) {
		return nil, fmt.Errorf("inspect container %s: %w", name, err)
	}

	return m.createLocked(ctx, userID, tier)
}

// Create unconditionally creates and starts a container for the user.
func (m *DockerManager) Create(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.createLocked(ctx, userID, tier)
}

func (m *DockerManager) createLocked(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error) {
	tierName, limits := m.cfg.TierFor(tier)
	name := domain.ContainerName(userID)

	hostDir, err := m.ensureUserDir(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	cfg, hostCfg := m.buildConfig(userID, tierName, limits, hostDir)

	id, err := m.createWithRetry(ctx, cfg, hostCfg, name, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	if err := m.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		m.removeBestEffort(id)
		return nil, fmt.Errorf("%w: start container %s: %v", ErrCreateFailed, id, err)
	}

	if err := m.waitReady(ctx, id); err != nil {
		m.removeBestEffort(id)
		return nil, err
	}

	now := time.Now()
	info := &domain.ContainerInfo{
		UserID:        userID,
		ContainerID:   id,
		ContainerName: name,
		Status:        domain.ContainerRunning,
		Tier:          tierName,
		CreatedAt:     now,
		LastActive:    now,
	}

	m.persist(info)

	m.mu.Lock()
	m.cache[userID] = info
	m.mu.Unlock()

	slog.Info("Container created and started", "container_id", id, "user_id", userID, "tier", tierName)
	return info, nil
}

func (m *DockerManager) createWithRetry(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name, userID string) (string, error) {
	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
		if createErr == nil {
			return resp.ID, nil
		}

		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return "", fmt.Errorf("create container: %w", createErr)
		}

		// A concurrent/delayed cleanup can leave the old named container
		// briefly. Force-remove by name and retry shortly.
		slog.Warn("Container name conflict during create, retrying",
			"user_id", userID,
			"container_name", name,
			"attempt", i+1,
			"error", createErr,
		)

		if inspect, inspectErr := m.cli.ContainerInspect(ctx, name); inspectErr == nil {
			if removeErr := m.cli.ContainerRemove(ctx, inspect.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errdefs.IsNotFound(removeErr) {
				slog.Warn("Failed to remove conflicting container before retry", "container_id", inspect.ID, "error", removeErr)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	return "", fmt.Errorf("create container after retries: %w", createErr)
}

// buildConfig assembles the container and host configuration for a user.
// Only the allow-listed environment reaches the container.
func (m *DockerManager) buildConfig(userID, tier string, limits config.TierLimits, hostDir string) (*container.Config, *container.HostConfig) {
	env := []string{
		"USER_ID=" + userID,
		"USER_TIER=" + tier,
		"NODE_ENV=production",
		"CLAUDE_CONFIG_DIR=" + workspaceMount + "/.claude",
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		// Route browser opens to stdout so the PTY broker can detect them.
		`BROWSER=echo "OPEN_URL:"`,
	}
	if m.cfg.AnthropicBaseURL != "" {
		env = append(env, "ANTHROPIC_BASE_URL="+m.cfg.AnthropicBaseURL)
	}
	if m.cfg.AnthropicAuthToken != "" {
		env = append(env, "ANTHROPIC_AUTH_TOKEN="+m.cfg.AnthropicAuthToken)
	}
	if m.cfg.AnthropicModel != "" {
		env = append(env, "ANTHROPIC_MODEL="+m.cfg.AnthropicModel)
	}

	cfg := &container.Config{
		Image:      m.cfg.Image,
		WorkingDir: workspaceMount,
		Env:        env,
		Labels: map[string]string{
			"agentdock.user":    userID,
			"agentdock.managed": "true",
			"agentdock.tier":    tier,
			"agentdock.created": time.Now().UTC().Format(time.RFC3339),
		},
	}

	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(m.cfg.Network),
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: hostDir,
			Target: workspaceMount,
		}},
		Resources: container.Resources{
			Memory:    limits.MemoryBytes,
			CPUQuota:  limits.CPUQuota,
			CPUPeriod: limits.CPUPeriod,
		},
		LogConfig: container.LogConfig{
			Type: "json-file",
			Config: map[string]string{
				"max-size": "10m",
				"max-file": "3",
			},
		},
	}

	return cfg, hostCfg
}

// userDataDir resolves the host directory backing a user's /workspace.
// The result must stay strictly under the data root; the dir is bind
// mounted rw and removed on destroy, so an ID like ".." must never
// resolve to the root itself or anything above it.
func userDataDir(dataDir, userID string) (string, error) {
	root, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	dir := filepath.Join(root, userID)
	if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", fmt.Errorf("user id %q escapes data dir", userID)
	}
	return dir, nil
}

// ensureUserDir creates the per-user host data directory that gets bind
// mounted at /workspace.
func (m *DockerManager) ensureUserDir(userID string) (string, error) {
	dir, err := userDataDir(m.cfg.DataDir, userID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, ".claude"), 0755); err != nil {
		return "", fmt.Errorf("create user data dir: %w", err)
	}
	return dir, nil
}

// waitReady polls inspect until the container is running and, if a
// healthcheck is declared, healthy.
func (m *DockerManager) waitReady(ctx context.Context, containerID string) error {
	deadline := time.Now().Add(m.cfg.Timeout.Ready)
	for {
		inspect, err := m.cli.ContainerInspect(ctx, containerID)
		if err == nil && inspect.State != nil && inspect.State.Running {
			health := inspect.State.Health
			if health == nil || health.Status == "healthy" {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: container %s not ready after %s", ErrStartupTimeout, containerID, m.cfg.Timeout.Ready)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Timeout.ReadyPoll):
		}
	}
}

// Exec runs a one-shot command in the user's container.
func (m *DockerManager) Exec(ctx context.Context, userID string, cmd []string, opts ExecOptions) (string, Stream, error) {
	info, err := m.GetOrCreate(ctx, userID, opts.Tier)
	if err != nil {
		return "", nil, err
	}

	execCfg := container.ExecOptions{
		Cmd:          cmd,
		Env:          opts.Env,
		WorkingDir:   opts.Cwd,
		Tty:          opts.TTY,
		AttachStdin:  opts.Stdin,
		AttachStdout: true,
		AttachStderr: true,
	}

	resp, err := m.cli.ContainerExecCreate(ctx, info.ContainerID, execCfg)
	if err != nil {
		return "", nil, fmt.Errorf("create exec in container %s: %w", info.ContainerID, err)
	}

	attach, err := m.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{Tty: opts.TTY})
	if err != nil {
		return "", nil, fmt.Errorf("attach exec %s: %w", resp.ID, err)
	}

	m.touchUser(userID)
	return resp.ID, &hijackedStream{resp: attach}, nil
}

// AttachShell creates an interactive TTY exec positioned in workingDir.
func (m *DockerManager) AttachShell(ctx context.Context, userID string, opts ShellOptions) (string, Stream, error) {
	info, err := m.GetOrCreate(ctx, userID, opts.Tier)
	if err != nil {
		return "", nil, err
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	execCfg := container.ExecOptions{
		Cmd:          []string{"/bin/bash"},
		WorkingDir:   opts.WorkingDir,
		Tty:          true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		ConsoleSize:  &[2]uint{rows, cols},
	}

	resp, err := m.cli.ContainerExecCreate(ctx, info.ContainerID, execCfg)
	if err != nil {
		return "", nil, fmt.Errorf("create shell exec in container %s: %w", info.ContainerID, err)
	}

	attach, err := m.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return "", nil, fmt.Errorf("attach shell exec %s: %w", resp.ID, err)
	}

	m.touchUser(userID)
	slog.Info("Shell exec created", "exec_id", resp.ID, "container_id", info.ContainerID, "user_id", userID)
	return resp.ID, &hijackedStream{resp: attach}, nil
}

// ResizeExec resizes a running TTY exec.
func (m *DockerManager) ResizeExec(ctx context.Context, execID string, cols, rows uint) error {
	if err := m.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{
		Height: rows,
		Width:  cols,
	}); err != nil {
		return fmt.Errorf("resize exec %s to %dx%d: %w", execID, cols, rows, err)
	}
	return nil
}

// Stop stops the user's container. Idempotent.
func (m *DockerManager) Stop(ctx context.Context, userID string, timeoutSecs int) error {
	info, ok := m.cachedInfo(userID)
	if !ok {
		return ErrNotFound
	}

	if timeoutSecs <= 0 {
		timeoutSecs = defaultStopTimeoutSecs
	}
	if err := m.cli.ContainerStop(ctx, info.ContainerID, container.StopOptions{Timeout: &timeoutSecs}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("stop container %s: %w", info.ContainerID, err)
		}
	}

	m.setStatus(info, domain.ContainerStopped)
	slog.Info("Container stopped", "container_id", info.ContainerID, "user_id", userID)
	return nil
}

// Start starts a stopped container.
func (m *DockerManager) Start(ctx context.Context, userID string) error {
	info, ok := m.cachedInfo(userID)
	if !ok {
		return ErrNotFound
	}

	if err := m.cli.ContainerStart(ctx, info.ContainerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", info.ContainerID, err)
	}
	if err := m.waitReady(ctx, info.ContainerID); err != nil {
		return err
	}

	m.setStatus(info, domain.ContainerRunning)
	m.touchUser(userID)
	return nil
}

// Destroy stops and removes the user's container. The registry record is
// deleted even if the runtime already lost the container.
func (m *DockerManager) Destroy(ctx context.Context, userID string, removeVolume bool) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	info, ok := m.cachedInfo(userID)
	if !ok {
		// Fall back to the runtime by name so orphans are still removable.
		inspect, err := m.cli.ContainerInspect(ctx, domain.ContainerName(userID))
		if err != nil {
			if errdefs.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("inspect container for destroy: %w", err)
		}
		info = &domain.ContainerInfo{
			UserID:      userID,
			ContainerID: inspect.ID,
		}
	}

	timeout := defaultStopTimeoutSecs
	if err := m.cli.ContainerStop(ctx, info.ContainerID, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		slog.Debug("Container stop before remove failed", "container_id", info.ContainerID, "error", err)
	}

	if err := m.cli.ContainerRemove(ctx, info.ContainerID, container.RemoveOptions{Force: true}); err != nil {
		if !errdefs.IsNotFound(err) && !strings.Contains(err.Error(), "is already in progress") {
			return fmt.Errorf("remove container %s: %w", info.ContainerID, err)
		}
	}

	if err := m.registry.Delete(context.WithoutCancel(ctx), info.ContainerID); err != nil {
		slog.Warn("Registry delete failed", "container_id", info.ContainerID, "error", err)
	}

	m.mu.Lock()
	delete(m.cache, userID)
	m.mu.Unlock()

	if removeVolume {
		if dir, err := userDataDir(m.cfg.DataDir, userID); err != nil {
			slog.Warn("Refusing to remove user data dir", "user_id", userID, "error", err)
		} else if err := os.RemoveAll(dir); err != nil {
			slog.Warn("Failed to remove user data dir", "dir", dir, "error", err)
		}
	}

	slog.Info("Container destroyed", "container_id", info.ContainerID, "user_id", userID, "remove_volume", removeVolume)
	return nil
}

// Stats returns a point-in-time resource usage snapshot for the user's
// container.
func (m *DockerManager) Stats(ctx context.Context, userID string) (*domain.ContainerStats, error) {
	info, ok := m.cachedInfo(userID)
	if !ok {
		return nil, ErrNotFound
	}

	resp, err := m.cli.ContainerStats(ctx, info.ContainerID, false)
	if err != nil {
		return nil, fmt.Errorf("container stats %s: %w", info.ContainerID, err)
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	return computeStats(&raw), nil
}

// ListAll returns all cached container records.
func (m *DockerManager) ListAll() []*domain.ContainerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]*domain.ContainerInfo, 0, len(m.cache))
	for _, info := range m.cache {
		copied := *info
		infos = append(infos, &copied)
	}
	return infos
}

// GetByUser returns the cached record for a user.
func (m *DockerManager) GetByUser(userID string) (*domain.ContainerInfo, bool) {
	return m.cachedInfo(userID)
}

// TouchActivity records user activity for the idle reaper.
func (m *DockerManager) TouchActivity(userID string) {
	m.touchUser(userID)
}

// EnsureNetwork creates the managed bridge network if it doesn't exist.
func (m *DockerManager) EnsureNetwork(ctx context.Context) (string, error) {
	networks, err := m.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list networks: %w", err)
	}

	for _, nw := range networks {
		if nw.Name == m.cfg.Network {
			return nw.ID, nil
		}
	}

	createResp, err := m.cli.NetworkCreate(ctx, m.cfg.Network, network.CreateOptions{
		Driver: "bridge",
	})
	if err != nil {
		return "", fmt.Errorf("create network %s: %w", m.cfg.Network, err)
	}

	slog.Info("Managed network created", "network_id", createResp.ID, "name", m.cfg.Network)
	return createResp.ID, nil
}

// Client returns the underlying Docker client.
func (m *DockerManager) Client() *client.Client {
	return m.cli
}

// Close closes the Docker client.
func (m *DockerManager) Close() error {
	return m.cli.Close()
}

// --- internal helpers ---

func (m *DockerManager) cachedInfo(userID string) (*domain.ContainerInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.cache[userID]
	if !ok {
		return nil, false
	}
	copied := *info
	return &copied, true
}

// adopt places a live runtime container into the cache and registry.
func (m *DockerManager) adopt(userID, containerID, name, tier string) *domain.ContainerInfo {
	now := time.Now()
	info := &domain.ContainerInfo{
		UserID:        userID,
		ContainerID:   containerID,
		ContainerName: name,
		Status:        domain.ContainerRunning,
		Tier:          tier,
		CreatedAt:     now,
		LastActive:    now,
	}

	m.mu.Lock()
	m.cache[userID] = info
	m.mu.Unlock()

	m.persist(info)
	return info
}

func (m *DockerManager) setStatus(info *domain.ContainerInfo, status domain.ContainerStatus) {
	m.mu.Lock()
	if cached, ok := m.cache[info.UserID]; ok {
		cached.Status = status
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.registry.MarkStatus(ctx, info.ContainerID, status); err != nil {
		slog.Warn("Registry status update failed", "container_id", info.ContainerID, "error", err)
	}
}

func (m *DockerManager) touchUser(userID string) {
	m.mu.Lock()
	info, ok := m.cache[userID]
	if ok {
		info.LastActive = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.registry.TouchLastActive(ctx, info.ContainerID, info.LastActive); err != nil {
			slog.Warn("Registry touch failed", "container_id", info.ContainerID, "error", err)
		}
	}()
}

func (m *DockerManager) touchLocked(info *domain.ContainerInfo) {
	m.mu.Lock()
	if cached, ok := m.cache[info.UserID]; ok {
		cached.LastActive = time.Now()
	}
	m.mu.Unlock()
}

// persist writes the record to the registry. Registry writes are
// best-effort while the process is running; the cache stays authoritative.
func (m *DockerManager) persist(info *domain.ContainerInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.registry.Upsert(ctx, info); err != nil {
		slog.Warn("Registry upsert failed", "container_id", info.ContainerID, "user_id", info.UserID, "error", err)
	}
}

func (m *DockerManager) removeBestEffort(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("Failed to remove partial container", "container_id", containerID, "error", err)
	}
}

func tierFromLabels(labels map[string]string, fallback string) string {
	if labels != nil {
		if tier, ok := labels["agentdock.tier"]; ok && tier != "" {
			return tier
		}
	}
	if fallback == "" {
		return "free"
	}
	return fallback
}
