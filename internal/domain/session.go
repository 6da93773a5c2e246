package domain

import (
	"time"
)

// Provider identifies which agent CLI family a session belongs to.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderCursor Provider = "cursor"
	ProviderCodex  Provider = "codex"
)

// SessionStatus is the lifecycle state of an agent query session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
	SessionError     SessionStatus = "error"
)

// AgentSession records one agent query executed inside a user's container.
// Records are kept in memory for the lifetime of the process so that status
// queries keep working after the stream ends.
type AgentSession struct {
	SessionID   string                 `json:"session_id"`
	UserID      string                 `json:"user_id"`
	ContainerID string                 `json:"container_id"`
	Provider    Provider               `json:"provider"`
	Command     string                 `json:"command"`
	Options     map[string]interface{} `json:"options,omitempty"`
	Status      SessionStatus          `json:"status"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// IsActive returns true while the session is still running.
func (s *AgentSession) IsActive() bool {
	return s.Status == SessionRunning
}
