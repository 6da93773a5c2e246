// Package agent runs AI SDK queries inside user containers and tracks
// their session lifecycle.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/container"
	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/stream"
)

// ErrSessionActive is returned when a query reuses a sessionId that is
// still running.
var ErrSessionActive = errors.New("session already running")

// Writer is a transport-neutral sink for typed JSON messages bound to one
// client.
type Writer interface {
	Send(v interface{}) error
}

// Runtime is the container surface the broker needs.
type Runtime interface {
	GetOrCreate(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error)
	Exec(ctx context.Context, userID string, cmd []string, opts container.ExecOptions) (string, container.Stream, error)
}

// session pairs the public record with the resources abort needs to
// release.
type session struct {
	record *domain.AgentSession
	stream container.Stream
	cancel context.CancelFunc

	// sendMu serializes event delivery with abort: a frame is either
	// delivered before Abort returns or never delivered at all.
	sendMu sync.Mutex
}

// Broker runs agent queries for one provider. Providers share the
// implementation but keep separate session registries.
type Broker struct {
	provider domain.Provider
	runtime  Runtime
	cfg      *config.Config

	mu       sync.Mutex
	sessions map[string]*session
}

// NewBroker creates a broker for one provider.
func NewBroker(provider domain.Provider, runtime Runtime, cfg *config.Config) *Broker {
	return &Broker{
		provider: provider,
		runtime:  runtime,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// RunQuery starts an agent query in the user's container and streams typed
// events to w until the query ends. It returns the session ID as soon as
// the session is registered; the stream is pumped on a background
// goroutine.
func (b *Broker) RunQuery(ctx context.Context, userID, command string, options map[string]interface{}, w Writer) (string, error) {
	if options == nil {
		options = map[string]interface{}{}
	}

	sessionID, _ := options["sessionId"].(string)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	tier, _ := options["tier"].(string)
	info, err := b.runtime.GetOrCreate(ctx, userID, tier)
	if err != nil {
		return "", fmt.Errorf("ensure container: %w", err)
	}

	cwd := resolveCwd(b.cfg.ProjectsRoot, options)
	sdkOptions := filterSDKOptions(options)

	cmd, err := buildExecCommand(b.cfg.SDKEntrypoint, command, sdkOptions)
	if err != nil {
		return "", err
	}

	record := &domain.AgentSession{
		SessionID:   sessionID,
		UserID:      userID,
		ContainerID: info.ContainerID,
		Provider:    b.provider,
		Command:     command,
		Options:     sdkOptions,
		Status:      domain.SessionRunning,
		StartTime:   time.Now(),
	}

	queryCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout.Query)

	b.mu.Lock()
	if existing, ok := b.sessions[sessionID]; ok && existing.record.IsActive() {
		b.mu.Unlock()
		cancel()
		return "", fmt.Errorf("%w: %s", ErrSessionActive, sessionID)
	}
	sess := &session{record: record, cancel: cancel}
	b.sessions[sessionID] = sess
	b.mu.Unlock()

	b.send(w, map[string]interface{}{
		"type":        "session_start",
		"sessionId":   sessionID,
		"containerId": info.ContainerID,
	})

	execID, execStream, err := b.runtime.Exec(queryCtx, userID, cmd, container.ExecOptions{Cwd: cwd, Tier: tier})
	if err != nil {
		cancel()
		b.finish(sess, domain.SessionError, err.Error())
		b.send(w, map[string]interface{}{"type": "error", "sessionId": sessionID, "error": "failed to start agent query"})
		return sessionID, fmt.Errorf("exec agent query: %w", err)
	}

	b.mu.Lock()
	sess.stream = execStream
	b.mu.Unlock()

	slog.Info("Agent query started",
		"provider", b.provider,
		"session_id", sessionID,
		"user_id", userID,
		"container_id", info.ContainerID,
		"exec_id", execID,
	)

	go b.pump(queryCtx, sess, execStream, w)
	return sessionID, nil
}

// pump demuxes the exec stream, forwards events in order, and settles the
// final session state.
func (b *Broker) pump(ctx context.Context, sess *session, execStream container.Stream, w Writer) {
	defer sess.cancel()
	defer execStream.Close()

	sessionID := sess.record.SessionID

	// The stream is destroyed when the deadline fires so the demux loop
	// can't outlive the query budget.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			execStream.Close()
		case <-watchdogDone:
		}
	}()

	err := stream.Demux(execStream, func(ev stream.Event) {
		b.forward(sess, w, ev)
	})

	switch {
	case b.status(sessionID) == domain.SessionAborted:
		// Abort already settled the record; nothing more to emit.
		slog.Info("Agent query aborted", "provider", b.provider, "session_id", sessionID)

	case ctx.Err() == context.DeadlineExceeded:
		if b.finish(sess, domain.SessionError, "timeout") {
			b.send(w, map[string]interface{}{"type": "error", "sessionId": sessionID, "error": "query timed out"})
		}
		slog.Warn("Agent query timed out", "provider", b.provider, "session_id", sessionID)

	case err != nil:
		var execErr *stream.ExecError
		msg := "agent query failed"
		if errors.As(err, &execErr) {
			msg = execErr.Stderr
		}
		if b.finish(sess, domain.SessionError, msg) {
			b.send(w, map[string]interface{}{"type": "error", "sessionId": sessionID, "error": msg})
		}
		slog.Warn("Agent query failed", "provider", b.provider, "session_id", sessionID, "error", err)

	default:
		if b.finish(sess, domain.SessionCompleted, "") {
			b.send(w, map[string]interface{}{"type": "done", "sessionId": sessionID})
		}
		slog.Info("Agent query completed", "provider", b.provider, "session_id", sessionID)
	}
}

// forward relays one demuxed event unless the session has already been
// settled; nothing may reach the writer after an abort.
func (b *Broker) forward(sess *session, w Writer, ev stream.Event) {
	sess.sendMu.Lock()
	defer sess.sendMu.Unlock()

	b.mu.Lock()
	active := sess.record.IsActive()
	b.mu.Unlock()
	if !active {
		return
	}

	if ev.Type == "output" {
		b.send(w, map[string]interface{}{"type": "output", "sessionId": sess.record.SessionID, "data": ev.Data})
		return
	}
	b.send(w, json.RawMessage(ev.Raw))
}

// Abort marks the session aborted and best-effort destroys the underlying
// exec stream. Returns false for unknown or finished sessions.
func (b *Broker) Abort(sessionID string) bool {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if !ok || !sess.record.IsActive() {
		b.mu.Unlock()
		return false
	}
	now := time.Now()
	sess.record.Status = domain.SessionAborted
	sess.record.EndTime = &now
	execStream := sess.stream
	cancel := sess.cancel
	b.mu.Unlock()

	// Interrupt is fire-and-forget; the state change above is what counts.
	go func() {
		cancel()
		if execStream != nil {
			if err := execStream.Close(); err != nil {
				slog.Debug("Abort stream close failed", "session_id", sessionID, "error", err)
			}
		}
	}()

	// Wait out a frame that already passed the liveness check. Once this
	// returns, nothing else reaches the writer.
	sess.sendMu.Lock()
	sess.sendMu.Unlock() //nolint:staticcheck // drain, not a critical section

	slog.Info("Agent session aborted", "provider", b.provider, "session_id", sessionID)
	return true
}

// IsActive reports whether the session exists and is still running.
func (b *Broker) IsActive(sessionID string) bool {
	return b.status(sessionID) == domain.SessionRunning
}

// ListActive returns copies of all running session records.
func (b *Broker) ListActive() []*domain.AgentSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*domain.AgentSession
	for _, sess := range b.sessions {
		if sess.record.IsActive() {
			copied := *sess.record
			out = append(out, &copied)
		}
	}
	return out
}

// Get returns a copy of the session record, or nil.
func (b *Broker) Get(sessionID string) *domain.AgentSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	copied := *sess.record
	return &copied
}

func (b *Broker) status(sessionID string) domain.SessionStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		return ""
	}
	return sess.record.Status
}

// finish settles the record if it is still running. Returns false when the
// session was already settled, in which case the caller must not emit a
// terminal event for it.
func (b *Broker) finish(sess *session, status domain.SessionStatus, errMsg string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !sess.record.IsActive() {
		return false
	}
	now := time.Now()
	sess.record.Status = status
	sess.record.EndTime = &now
	sess.record.Error = errMsg
	return true
}

func (b *Broker) send(w Writer, v interface{}) {
	if err := w.Send(v); err != nil {
		slog.Debug("Writer send failed", "provider", b.provider, "error", err)
	}
}
