package pty

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// SessionKey derives the deterministic key under which a PTY session is
// registered. The initial command, when present, is folded in via a
// truncated base64 hash so distinct commands get distinct sessions.
func SessionKey(userID, projectPath, sessionID, initialCommand string) string {
	sid := sessionID
	if sid == "" {
		sid = "default"
	}
	key := fmt.Sprintf("container_%s_%s_%s", userID, projectPath, sid)
	if initialCommand != "" {
		enc := base64.StdEncoding.EncodeToString([]byte(initialCommand))
		if len(enc) > 16 {
			enc = enc[:16]
		}
		key += "_cmd_" + enc
	}
	return key
}

// IsLoginCommand reports whether a command line is a provider login flow.
// Login sessions must never be reused: an existing session under the same
// key is destroyed first so credentials prompts start clean.
func IsLoginCommand(cmd string) bool {
	if cmd == "" {
		return false
	}
	if strings.Contains(cmd, "setup-token") || strings.Contains(cmd, "auth login") {
		return true
	}
	fields := strings.Fields(cmd)
	for i, f := range fields {
		if f == "login" && i > 0 {
			return true
		}
	}
	return false
}
