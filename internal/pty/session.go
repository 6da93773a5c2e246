package pty

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agentdock/agentdock/internal/container"
)

// Status is the lifecycle state of a PTY session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusError  Status = "error"
)

// Writer is a transport-neutral sink for typed JSON messages bound to one
// client.
type Writer interface {
	Send(v interface{}) error
}

// InitData is the shell-channel init payload.
type InitData struct {
	ProjectPath    string `json:"projectPath"`
	SessionID      string `json:"sessionId,omitempty"`
	HasSession     bool   `json:"hasSession,omitempty"`
	Provider       string `json:"provider,omitempty"`
	InitialCommand string `json:"initialCommand,omitempty"`
	Cols           uint   `json:"cols,omitempty"`
	Rows           uint   `json:"rows,omitempty"`
	IsPlainShell   bool   `json:"isPlainShell,omitempty"`
	IsLogin        bool   `json:"isLogin,omitempty"`
}

// Session is one live PTY attached to a container. The session owns its
// stream and rolling buffer; the WebSocket writer is a weak handle that a
// disconnect clears without tearing the session down.
type Session struct {
	Key          string
	UserID       string
	ContainerID  string
	ExecID       string
	Provider     string
	ProjectPath  string
	IsPlainShell bool
	CreatedAt    time.Time

	mu         sync.Mutex
	status     Status
	cols       uint
	rows       uint
	lastActive time.Time
	endedAt    *time.Time
	writer     Writer
	buffer     *RollingBuffer
	stream     container.Stream
	idleTimer  *time.Timer
}

// Active reports whether the session still has a live stream.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusActive
}

// Status returns the session's lifecycle state.
func (s *Session) State() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Size returns the stored terminal dimensions.
func (s *Session) Size() (cols, rows uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// emitLocked sends a typed message to the attached writer, if any. Callers
// hold s.mu, which serializes replay against fresh output.
func (s *Session) emitLocked(v interface{}) {
	if s.writer == nil {
		return
	}
	if err := s.writer.Send(v); err != nil {
		slog.Debug("PTY writer send failed", "session_key", s.Key, "error", err)
	}
}

func (s *Session) emitOutputLocked(data string) {
	s.emitLocked(map[string]interface{}{"type": "output", "data": data})
}

// stopIdleTimerLocked cancels any pending idle expiry. Callers hold s.mu.
func (s *Session) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
