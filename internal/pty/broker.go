// Package pty brokers interactive terminal sessions attached to user
// containers, with reconnect and buffer replay.
package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/container"
	"github.com/agentdock/agentdock/internal/domain"
)

const (
	defaultCols = 80
	defaultRows = 24

	welcomeColor = "\x1b[36m"
	colorReset   = "\x1b[0m"
)

// providerCLIs maps a provider name to its in-container CLI.
var providerCLIs = map[string]string{
	"claude": "claude",
	"cursor": "cursor-agent",
	"codex":  "codex",
}

var providerTitles = map[string]string{
	"claude": "Claude",
	"cursor": "Cursor",
	"codex":  "Codex",
}

// Runtime is the container surface the broker needs.
type Runtime interface {
	GetOrCreate(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error)
	AttachShell(ctx context.Context, userID string, opts container.ShellOptions) (string, container.Stream, error)
	ResizeExec(ctx context.Context, execID string, cols, rows uint) error
	TouchActivity(userID string)
}

// Broker owns all live PTY sessions, keyed by deterministic session key.
// At most one active stream exists per key.
type Broker struct {
	runtime Runtime
	cfg     *config.Config

	mu       sync.Mutex
	sessions map[string]*Session

	// per-key init locks so concurrent inits for one key yield one shell
	initLocks sync.Map
}

// NewBroker creates a PTY session broker.
func NewBroker(runtime Runtime, cfg *config.Config) *Broker {
	return &Broker{
		runtime:  runtime,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// HandleInit creates or reattaches the PTY session for an init message and
// returns its session key.
func (b *Broker) HandleInit(ctx context.Context, userID string, w Writer, init InitData) (string, error) {
	isPlain := init.IsPlainShell ||
		(init.InitialCommand != "" && !init.HasSession) ||
		init.Provider == "plain-shell"

	key := SessionKey(userID, init.ProjectPath, init.SessionID, init.InitialCommand)

	// Held across the whole spawn so a racing init for the same key waits
	// and then reattaches instead of starting a second shell.
	lock := b.initLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Login flows must always start clean; never reattach a credentials
	// prompt mid-flight.
	if init.IsLogin || IsLoginCommand(init.InitialCommand) {
		b.destroy(key, "login command")
	}

	b.mu.Lock()
	existing := b.sessions[key]
	b.mu.Unlock()
	if existing != nil && existing.Active() {
		b.reattach(existing, w)
		return key, nil
	}

	return b.spawn(ctx, userID, w, init, key, isPlain)
}

func (b *Broker) initLock(key string) *sync.Mutex {
	lock, _ := b.initLocks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (b *Broker) spawn(ctx context.Context, userID string, w Writer, init InitData, key string, isPlain bool) (string, error) {
	cols, rows := init.Cols, init.Rows
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}

	info, err := b.runtime.GetOrCreate(ctx, userID, "")
	if err != nil {
		return "", fmt.Errorf("ensure container: %w", err)
	}

	workingDir := path.Join("/workspace", init.ProjectPath)
	execID, execStream, err := b.runtime.AttachShell(ctx, userID, container.ShellOptions{
		WorkingDir: workingDir,
		Cols:       cols,
		Rows:       rows,
	})
	if err != nil {
		return "", fmt.Errorf("attach shell: %w", err)
	}

	sess := &Session{
		Key:          key,
		UserID:       userID,
		ContainerID:  info.ContainerID,
		ExecID:       execID,
		Provider:     init.Provider,
		ProjectPath:  init.ProjectPath,
		IsPlainShell: isPlain,
		CreatedAt:    time.Now(),
		status:       StatusActive,
		cols:         cols,
		rows:         rows,
		lastActive:   time.Now(),
		writer:       w,
		buffer:       NewRollingBuffer(DefaultBufferCap),
		stream:       execStream,
	}

	sess.mu.Lock()
	sess.emitOutputLocked(welcomeLine(init, isPlain))
	sess.mu.Unlock()

	if cmd := composeCommand(init, isPlain, workingDir); cmd != "" {
		if _, err := execStream.Write([]byte(cmd + "\n")); err != nil {
			slog.Warn("Failed to write initial command", "session_key", key, "error", err)
		}
	}

	b.mu.Lock()
	b.sessions[key] = sess
	b.mu.Unlock()

	go b.pump(sess)

	slog.Info("PTY session created",
		"session_key", key,
		"user_id", userID,
		"container_id", info.ContainerID,
		"exec_id", execID,
		"plain_shell", isPlain,
	)
	return key, nil
}

// welcomeLine renders the ANSI banner for a fresh session.
func welcomeLine(init InitData, isPlain bool) string {
	if isPlain {
		return fmt.Sprintf("%sStarting shell in container: %s%s\r\n", welcomeColor, init.ProjectPath, colorReset)
	}
	title := providerTitles[init.Provider]
	if title == "" {
		title = providerTitles["claude"]
	}
	if init.HasSession && init.SessionID != "" {
		return fmt.Sprintf("%sResuming %s session in container: %s%s\r\n", welcomeColor, title, init.ProjectPath, colorReset)
	}
	return fmt.Sprintf("%sStarting new %s session in container: %s%s\r\n", welcomeColor, title, init.ProjectPath, colorReset)
}

// composeCommand builds the first line typed into the fresh shell.
func composeCommand(init InitData, isPlain bool, workingDir string) string {
	if isPlain {
		if init.InitialCommand == "" {
			return ""
		}
		return fmt.Sprintf("cd %s && %s", workingDir, init.InitialCommand)
	}

	cli := providerCLIs[init.Provider]
	if cli == "" {
		cli = providerCLIs["claude"]
	}
	if init.HasSession && init.SessionID != "" {
		// Resume if the CLI still knows the session, else start fresh.
		return fmt.Sprintf("cd %s && %s --resume %s || %s", workingDir, cli, init.SessionID, cli)
	}
	return fmt.Sprintf("cd %s && %s", workingDir, cli)
}

// pump forwards raw TTY bytes to the attached writer and the rolling
// buffer until the stream ends.
func (b *Broker) pump(sess *Session) {
	buf := make([]byte, 4096)
	for {
		n, err := sess.stream.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			urls, passthrough := DetectURLs(chunk)

			sess.mu.Lock()
			sess.buffer.Append(passthrough)
			sess.lastActive = time.Now()
			for _, u := range urls {
				sess.emitLocked(map[string]interface{}{"type": "url_open", "url": u})
			}
			sess.emitOutputLocked(passthrough)
			sess.mu.Unlock()
		}

		if err != nil {
			if isStreamClosed(err) {
				b.end(sess, StatusEnded, "\n<ProcessExited>\n")
			} else {
				b.end(sess, StatusError, fmt.Sprintf("\nError: %s\n", err.Error()))
			}
			return
		}
	}
}

func isStreamClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

// end settles a session whose stream finished, emits the final line, and
// drops ended sessions from the map.
func (b *Broker) end(sess *Session, status Status, finalMsg string) {
	sess.mu.Lock()
	if sess.status != StatusActive {
		sess.mu.Unlock()
		return
	}
	now := time.Now()
	sess.status = status
	sess.endedAt = &now
	sess.stopIdleTimerLocked()
	sess.emitOutputLocked(finalMsg)
	execStream := sess.stream
	sess.mu.Unlock()

	if execStream != nil {
		if err := execStream.Close(); err != nil {
			slog.Debug("PTY stream close failed", "session_key", sess.Key, "error", err)
		}
	}

	if status == StatusEnded {
		b.mu.Lock()
		if b.sessions[sess.Key] == sess {
			delete(b.sessions, sess.Key)
		}
		b.mu.Unlock()
	}

	slog.Info("PTY session ended", "session_key", sess.Key, "status", status)
}

// reattach binds a new writer to an existing session and replays the
// buffer. Replayed chunks precede any fresh bytes because the pump holds
// the same mutex while emitting.
func (b *Broker) reattach(sess *Session, w Writer) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.stopIdleTimerLocked()
	sess.writer = w
	sess.lastActive = time.Now()

	sess.emitOutputLocked("\x1b[36m[Reconnected to existing session]\x1b[0m\r\n")
	for _, chunk := range sess.buffer.Snapshot() {
		sess.emitOutputLocked(chunk)
	}

	slog.Info("PTY session reattached", "session_key", sess.Key, "buffered_chunks", sess.buffer.Len())
}

// HandleInput writes client keystrokes verbatim to the session stream.
func (b *Broker) HandleInput(key, data string) error {
	sess := b.lookup(key)
	if sess == nil {
		return fmt.Errorf("no session for key %s", key)
	}

	sess.mu.Lock()
	execStream := sess.stream
	sess.lastActive = time.Now()
	sess.mu.Unlock()

	if execStream == nil {
		return fmt.Errorf("session %s has no stream", key)
	}
	if _, err := execStream.Write([]byte(data)); err != nil {
		return fmt.Errorf("write to pty: %w", err)
	}

	b.runtime.TouchActivity(sess.UserID)
	return nil
}

// HandleResize updates stored dimensions and best-effort resizes the
// runtime exec. A runtime that can't resize is not an error.
func (b *Broker) HandleResize(ctx context.Context, key string, cols, rows uint) {
	sess := b.lookup(key)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	sess.cols = cols
	sess.rows = rows
	execID := sess.ExecID
	sess.mu.Unlock()

	if err := b.runtime.ResizeExec(ctx, execID, cols, rows); err != nil {
		slog.Warn("PTY resize failed", "session_key", key, "error", err)
	}
}

// Detach clears the writer and arms the idle timer. The session keeps
// running so the client can reconnect.
func (b *Broker) Detach(key string) {
	sess := b.lookup(key)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	if sess.status != StatusActive {
		sess.mu.Unlock()
		return
	}
	sess.writer = nil
	sess.stopIdleTimerLocked()
	sess.idleTimer = time.AfterFunc(b.cfg.Timeout.PTYIdle, func() {
		b.expire(key)
	})
	sess.mu.Unlock()

	slog.Info("PTY session detached", "session_key", key, "idle_timeout", b.cfg.Timeout.PTYIdle)
}

// expire kills a session whose client never came back.
func (b *Broker) expire(key string) {
	sess := b.lookup(key)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	detached := sess.writer == nil && sess.status == StatusActive
	sess.mu.Unlock()
	if !detached {
		return
	}

	slog.Info("PTY session idle timeout", "session_key", key)
	b.destroy(key, "idle timeout")
}

// destroy kills the stream and removes the record.
func (b *Broker) destroy(key, reason string) {
	b.mu.Lock()
	sess := b.sessions[key]
	if sess != nil {
		delete(b.sessions, key)
	}
	b.mu.Unlock()
	if sess == nil {
		return
	}

	sess.mu.Lock()
	now := time.Now()
	if sess.status == StatusActive {
		sess.status = StatusEnded
		sess.endedAt = &now
	}
	sess.stopIdleTimerLocked()
	sess.writer = nil
	execStream := sess.stream
	sess.mu.Unlock()

	if execStream != nil {
		if err := execStream.Close(); err != nil {
			slog.Debug("PTY stream close failed", "session_key", key, "error", err)
		}
	}

	slog.Info("PTY session destroyed", "session_key", key, "reason", reason)
}

// CloseUser destroys all sessions belonging to a user. Used when the
// user's container goes away.
func (b *Broker) CloseUser(userID string) {
	b.mu.Lock()
	var keys []string
	for key, sess := range b.sessions {
		if sess.UserID == userID {
			keys = append(keys, key)
		}
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.destroy(key, "container removed")
	}
}

// Get returns the session for a key, or nil.
func (b *Broker) Get(key string) *Session {
	return b.lookup(key)
}

func (b *Broker) lookup(key string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[key]
}
