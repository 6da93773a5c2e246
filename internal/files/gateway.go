package files

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/agentdock/agentdock/internal/container"
	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/stream"
)

// MaxWriteBytes caps decoded file content accepted by Write.
const MaxWriteBytes = 10 << 20

// Runtime is the container surface the gateway needs.
type Runtime interface {
	GetOrCreate(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error)
	Exec(ctx context.Context, userID string, cmd []string, opts container.ExecOptions) (string, container.Stream, error)
}

// Entry is one directory listing row.
type Entry struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Gateway runs file operations inside a user's container. Every path is
// validated before a command is composed, and content travels base64-encoded
// so it never touches shell parsing.
type Gateway struct {
	runtime      Runtime
	projectsRoot string
	writeTimeout time.Duration
}

func NewGateway(runtime Runtime, projectsRoot string, writeTimeout time.Duration) *Gateway {
	return &Gateway{runtime: runtime, projectsRoot: projectsRoot, writeTimeout: writeTimeout}
}

// run executes argv in the user's container and collects both streams.
func (g *Gateway) run(ctx context.Context, userID string, cmd []string) (stdout, stderr string, err error) {
	if _, err := g.runtime.GetOrCreate(ctx, userID, ""); err != nil {
		return "", "", err
	}
	_, st, err := g.runtime.Exec(ctx, userID, cmd, container.ExecOptions{})
	if err != nil {
		return "", "", err
	}
	defer st.Close()
	st.CloseWrite()
	out, errOut, err := stream.Collect(st)
	if err != nil {
		return "", "", err
	}
	return string(out), string(errOut), nil
}

// notFoundOutput matches the coreutils phrasing for missing paths.
func notFoundOutput(s string) bool {
	return strings.Contains(s, "No such file") || strings.Contains(s, "cannot access")
}

// Read returns the file's content with trailing whitespace trimmed.
func (g *Gateway) Read(ctx context.Context, userID string, t Target) (string, error) {
	full, err := resolve(g.projectsRoot, t)
	if err != nil {
		return "", err
	}
	stdout, stderr, err := g.run(ctx, userID, []string{"cat", full})
	if err != nil {
		return "", fmt.Errorf("read %s: %w", t.Path, err)
	}
	if notFoundOutput(stderr) || notFoundOutput(stdout) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, t.Path)
	}
	if stderr != "" {
		return "", fmt.Errorf("read %s: %s", t.Path, strings.TrimSpace(stderr))
	}
	return strings.TrimRight(stdout, " \t\r\n"), nil
}

// Write stores content at the target path, creating parent directories.
// Content is shipped base64-encoded and decoded inside the container.
//
// The wait is optimistic: a write still in flight when the timeout fires is
// reported as success, matching interactive-editor expectations where large
// writes land moments later.
func (g *Gateway) Write(ctx context.Context, userID string, t Target, content []byte) error {
	if len(content) > MaxWriteBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(content))
	}
	full, err := resolve(g.projectsRoot, t)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	script := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s",
		shellQuote(path.Dir(full)), shellQuote(encoded), shellQuote(full))

	type result struct {
		stderr string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		_, stderr, err := g.run(ctx, userID, []string{"/bin/sh", "-c", script})
		done <- result{stderr, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("write %s: %w", t.Path, res.err)
		}
		if res.stderr != "" {
			return fmt.Errorf("write %s: %s", t.Path, strings.TrimSpace(res.stderr))
		}
		return nil
	case <-time.After(g.writeTimeout):
		slog.Debug("file write still in flight, assuming success",
			"user_id", userID, "path", t.Path, "bytes", len(content))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// skipDirs are heavy build artifacts never worth listing.
var skipDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
}

// List returns the direct children of the target directory, directories
// first. Dotfiles are skipped unless includeHidden is set; node_modules,
// dist and build are always skipped.
func (g *Gateway) List(ctx context.Context, userID string, t Target, includeHidden bool) ([]Entry, error) {
	full, err := resolve(g.projectsRoot, t)
	if err != nil {
		return nil, err
	}
	stdout, stderr, err := g.run(ctx, userID, []string{
		"find", full, "-mindepth", "1", "-maxdepth", "1", "-printf", `%f|%y|%s|%T@\n`,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Path, err)
	}
	if notFoundOutput(stderr) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, t.Path)
	}

	entries := parseFindOutput(stdout, includeHidden)
	sortEntries(entries)
	return entries, nil
}

// parseFindOutput decodes `name|type|size|mtime` rows. Malformed rows are
// dropped rather than failing the whole listing.
func parseFindOutput(out string, includeHidden bool) []Entry {
	entries := []Entry{}
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		name := parts[0]
		if skipDirs[name] {
			continue
		}
		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		typ := "file"
		if parts[1] == "d" {
			typ = "directory"
		}
		size, _ := strconv.ParseInt(parts[2], 10, 64)
		var modified time.Time
		if secs, err := strconv.ParseFloat(parts[3], 64); err == nil {
			modified = time.Unix(int64(secs), 0).UTC()
		}
		entries = append(entries, Entry{Name: name, Type: typ, Size: size, Modified: modified})
	}
	return entries
}

// Stat returns metadata for a single path.
func (g *Gateway) Stat(ctx context.Context, userID string, t Target) (*Entry, error) {
	full, err := resolve(g.projectsRoot, t)
	if err != nil {
		return nil, err
	}
	stdout, stderr, err := g.run(ctx, userID, []string{"stat", "-c", "%n|%F|%s|%Y", full})
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", t.Path, err)
	}
	if notFoundOutput(stderr) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, t.Path)
	}
	parts := strings.SplitN(strings.TrimSpace(stdout), "|", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("stat %s: unexpected output %q", t.Path, stdout)
	}

	typ := "file"
	if strings.Contains(parts[1], "directory") {
		typ = "directory"
	}
	size, _ := strconv.ParseInt(parts[2], 10, 64)
	var modified time.Time
	if secs, err := strconv.ParseInt(parts[3], 10, 64); err == nil {
		modified = time.Unix(secs, 0).UTC()
	}
	return &Entry{Name: path.Base(parts[0]), Type: typ, Size: size, Modified: modified}, nil
}

// Delete removes a file or directory tree. Deleting a missing path is not
// an error.
func (g *Gateway) Delete(ctx context.Context, userID string, t Target) error {
	full, err := resolve(g.projectsRoot, t)
	if err != nil {
		return err
	}
	_, stderr, err := g.run(ctx, userID, []string{"rm", "-rf", full})
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.Path, err)
	}
	if stderr != "" {
		return fmt.Errorf("delete %s: %s", t.Path, strings.TrimSpace(stderr))
	}
	return nil
}

// Rename moves a file or directory within the same project base.
func (g *Gateway) Rename(ctx context.Context, userID string, t Target, newPath string) error {
	from, err := resolve(g.projectsRoot, t)
	if err != nil {
		return err
	}
	to, err := resolve(g.projectsRoot, Target{
		ProjectPath:        t.ProjectPath,
		IsContainerProject: t.IsContainerProject,
		Path:               newPath,
	})
	if err != nil {
		return err
	}
	_, stderr, err := g.run(ctx, userID, []string{"mv", from, to})
	if err != nil {
		return fmt.Errorf("rename %s: %w", t.Path, err)
	}
	if notFoundOutput(stderr) {
		return fmt.Errorf("%w: %s", ErrNotFound, t.Path)
	}
	if stderr != "" {
		return fmt.Errorf("rename %s: %s", t.Path, strings.TrimSpace(stderr))
	}
	return nil
}

// GetProjects lists the user's container-native project directories. A user
// with none gets a bootstrapped my-workspace so clients always see at least
// one project.
func (g *Gateway) GetProjects(ctx context.Context, userID string) ([]string, error) {
	stdout, _, err := g.run(ctx, userID, []string{
		"find", g.projectsRoot, "-mindepth", "1", "-maxdepth", "1", "-type", "d", "-printf", `%f\n`,
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var projects []string
	for _, line := range strings.Split(stdout, "\n") {
		if line != "" {
			projects = append(projects, line)
		}
	}
	if len(projects) > 0 {
		sortStrings(projects)
		return projects, nil
	}

	if err := g.bootstrapWorkspace(ctx, userID); err != nil {
		return nil, fmt.Errorf("bootstrap workspace: %w", err)
	}
	return []string{defaultWorkspace}, nil
}

const defaultWorkspace = "my-workspace"

var bootstrapFiles = map[string]string{
	"README.md": "# My Workspace\n\nYour personal coding workspace. Files here persist across sessions.\n",
	".gitignore": "node_modules/\ndist/\nbuild/\n.env\n",
	"package.json": "{\n  \"name\": \"my-workspace\",\n  \"version\": \"0.1.0\",\n  \"private\": true\n}\n",
}

// bootstrapWorkspace creates the default project with a git repo and starter
// files. Starter files go through the same write path as client writes.
func (g *Gateway) bootstrapWorkspace(ctx context.Context, userID string) error {
	dir := path.Join(g.projectsRoot, defaultWorkspace)
	script := fmt.Sprintf("mkdir -p %s && cd %s && git init -q", shellQuote(dir), shellQuote(dir))
	if _, stderr, err := g.run(ctx, userID, []string{"/bin/sh", "-c", script}); err != nil {
		return err
	} else if stderr != "" {
		slog.Warn("workspace git init reported errors", "user_id", userID, "stderr", strings.TrimSpace(stderr))
	}

	for name, content := range bootstrapFiles {
		t := Target{ProjectPath: defaultWorkspace, IsContainerProject: true, Path: name}
		if err := g.Write(ctx, userID, t, []byte(content)); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	slog.Info("bootstrapped default workspace", "user_id", userID)
	return nil
}
