package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/agentdock/agentdock/internal/agent"
	"github.com/agentdock/agentdock/internal/domain"
	"github.com/agentdock/agentdock/internal/identity"
	"github.com/agentdock/agentdock/internal/pty"
)

// chatMessage is the client-to-server envelope on the chat channel.
type chatMessage struct {
	Type      string                 `json:"type"`
	Command   string                 `json:"command,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
}

// shellMessage is the client-to-server envelope on the shell channel. Init
// fields are flattened into the same object.
type shellMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	pty.InitData
}

// Router upgrades WebSocket connections and dispatches typed messages to
// the agent brokers and the PTY broker.
type Router struct {
	brokers       map[domain.Provider]*agent.Broker
	pty           *pty.Broker
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewRouter creates the message router.
func NewRouter(brokers map[domain.Provider]*agent.Broker, ptyBroker *pty.Broker, hub *Hub, allowedOrigin string, isDev bool) *Router {
	return &Router{
		brokers:       brokers,
		pty:           ptyBroker,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// Hub returns the broadcast hub backing this router.
func (rt *Router) Hub() *Hub {
	return rt.hub
}

func (rt *Router) checkOrigin(r *http.Request) bool {
	if rt.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || rt.allowedOrigin == "*" {
		return true
	}
	if origin == rt.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", rt.allowedOrigin)
	return false
}

func (rt *Router) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	if !rt.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return nil, false
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return nil, false
	}
	return ws, true
}

// ServeChat handles a chat-channel connection carrying agent commands.
func (rt *Router) ServeChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("Chat connection opened", "user_id", userID, "ip", r.RemoteAddr)

	ws, ok := rt.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if err := ws.Close(websocket.StatusNormalClosure, "session ended"); err != nil {
			slog.Debug("Failed to close websocket", "error", err, "user_id", userID)
		}
	}()

	conn := NewConn(ws)
	rt.hub.Add(conn)
	defer rt.hub.Remove(conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Chat connection closed by client", "user_id", userID)
			} else {
				slog.Warn("Chat read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg chatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			sendError(conn, "", "malformed message")
			continue
		}
		rt.dispatchChat(ctx, userID, conn, msg)
	}
}

func (rt *Router) dispatchChat(ctx context.Context, userID string, conn *Conn, msg chatMessage) {
	switch msg.Type {
	case "claude-command", "cursor-command", "codex-command":
		provider := domain.Provider(strings.TrimSuffix(msg.Type, "-command"))
		rt.runQuery(ctx, rt.brokers[provider], userID, msg.Command, msg.Options, conn)

	case "cursor-resume":
		options := msg.Options
		if options == nil {
			options = map[string]interface{}{}
		}
		options["sessionId"] = msg.SessionID
		options["resume"] = true
		rt.runQuery(ctx, rt.brokers[domain.ProviderCursor], userID, "", options, conn)

	case "abort-session":
		provider := msg.Provider
		if provider == "" {
			provider = string(domain.ProviderClaude)
		}
		rt.abort(conn, domain.Provider(provider), msg.SessionID)

	case "cursor-abort":
		rt.abort(conn, domain.ProviderCursor, msg.SessionID)

	case "check-session-status":
		provider, isProcessing := rt.sessionStatus(msg.Provider, msg.SessionID)
		if err := conn.Send(map[string]interface{}{
			"type":         "session-status",
			"sessionId":    msg.SessionID,
			"provider":     provider,
			"isProcessing": isProcessing,
		}); err != nil {
			slog.Debug("Failed to send session-status", "error", err)
		}

	case "get-active-sessions":
		if err := conn.Send(map[string]interface{}{
			"type": "active-sessions",
			"sessions": map[string]interface{}{
				"cursor": sessionIDs(rt.brokers[domain.ProviderCursor]),
				"codex":  sessionIDs(rt.brokers[domain.ProviderCodex]),
			},
		}); err != nil {
			slog.Debug("Failed to send active-sessions", "error", err)
		}

	case "ping":
		if err := conn.Send(map[string]string{"type": "pong"}); err != nil {
			slog.Debug("Failed to send pong", "error", err)
		}

	default:
		slog.Debug("Unknown chat message type ignored", "type", msg.Type, "user_id", userID)
	}
}

// runQuery starts an agent query on a background goroutine so the read loop
// stays responsive while the container spins up.
func (rt *Router) runQuery(ctx context.Context, b *agent.Broker, userID, command string, options map[string]interface{}, conn *Conn) {
	if b == nil {
		sendError(conn, "", "unknown provider")
		return
	}
	go func() {
		sessionID, err := b.RunQuery(ctx, userID, command, options, conn)
		if err != nil {
			slog.Warn("Agent query rejected", "user_id", userID, "error", err)
			sendError(conn, sessionID, err.Error())
		}
	}()
}

func (rt *Router) abort(conn *Conn, provider domain.Provider, sessionID string) {
	success := false
	if b := rt.brokers[provider]; b != nil {
		success = b.Abort(sessionID)
	}
	if err := conn.Send(map[string]interface{}{
		"type":      "session-aborted",
		"sessionId": sessionID,
		"provider":  string(provider),
		"success":   success,
	}); err != nil {
		slog.Debug("Failed to send session-aborted", "error", err)
	}
}

// sessionStatus resolves which provider owns the session and whether it is
// still running. With no provider given, all registries are checked.
func (rt *Router) sessionStatus(provider, sessionID string) (string, bool) {
	if provider != "" {
		b := rt.brokers[domain.Provider(provider)]
		return provider, b != nil && b.IsActive(sessionID)
	}
	for p, b := range rt.brokers {
		if b.IsActive(sessionID) {
			return string(p), true
		}
	}
	return string(domain.ProviderClaude), false
}

func sessionIDs(b *agent.Broker) []string {
	ids := []string{}
	if b == nil {
		return ids
	}
	for _, rec := range b.ListActive() {
		ids = append(ids, rec.SessionID)
	}
	return ids
}

// ServeShell handles a shell-channel connection carrying one PTY session.
func (rt *Router) ServeShell(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("Shell connection opened", "user_id", userID, "ip", r.RemoteAddr)

	ws, ok := rt.accept(w, r)
	if !ok {
		return
	}
	defer func() {
		if err := ws.Close(websocket.StatusNormalClosure, "session ended"); err != nil {
			slog.Debug("Failed to close websocket", "error", err, "user_id", userID)
		}
	}()

	conn := NewConn(ws)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The session outlives the socket; a disconnect detaches rather than
	// destroys so the client can reconnect and replay.
	var sessionKey string
	defer func() {
		if sessionKey != "" {
			rt.pty.Detach(sessionKey)
		}
	}()

	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Shell connection closed by client", "user_id", userID, "session_key", sessionKey)
			} else {
				slog.Warn("Shell read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg shellMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			sendError(conn, "", "malformed message")
			continue
		}

		switch msg.Type {
		case "init":
			key, err := rt.pty.HandleInit(ctx, userID, conn, msg.InitData)
			if err != nil {
				slog.Error("PTY init failed", "user_id", userID, "error", err)
				sendError(conn, "", "failed to start terminal session")
				continue
			}
			sessionKey = key

		case "input":
			if sessionKey == "" {
				continue
			}
			if err := rt.pty.HandleInput(sessionKey, msg.Data); err != nil {
				slog.Debug("PTY input dropped", "session_key", sessionKey, "error", err)
			}

		case "resize":
			if sessionKey == "" {
				continue
			}
			rt.pty.HandleResize(ctx, sessionKey, msg.Cols, msg.Rows)

		case "ping":
			if err := conn.Send(map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}

		default:
			slog.Debug("Unknown shell message type ignored", "type", msg.Type, "user_id", userID)
		}
	}
}

// sendError frames an error for the client without internal detail beyond
// the message itself.
func sendError(conn *Conn, sessionID, message string) {
	msg := map[string]interface{}{"type": "error", "error": message}
	if sessionID != "" {
		msg["sessionId"] = sessionID
	}
	if err := conn.Send(msg); err != nil {
		slog.Debug("Failed to send error frame", "error", err)
	}
}
