package pty

import (
	"strings"
	"testing"
)

func TestSessionKey(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		projectPath    string
		sessionID      string
		initialCommand string
		want           string
	}{
		{
			name:        "default session",
			userID:      "u1",
			projectPath: "proj",
			want:        "container_u1_proj_default",
		},
		{
			name:        "explicit session",
			userID:      "u1",
			projectPath: "proj",
			sessionID:   "abc",
			want:        "container_u1_proj_abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SessionKey(tt.userID, tt.projectPath, tt.sessionID, tt.initialCommand)
			if got != tt.want {
				t.Errorf("Expected key %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSessionKey_CommandSuffix(t *testing.T) {
	base := SessionKey("u1", "proj", "", "")
	withCmd := SessionKey("u1", "proj", "", "npm run dev")

	if !strings.HasPrefix(withCmd, base+"_cmd_") {
		t.Fatalf("Expected command key to extend %q, got %q", base, withCmd)
	}
	suffix := strings.TrimPrefix(withCmd, base+"_cmd_")
	if len(suffix) == 0 || len(suffix) > 16 {
		t.Errorf("Expected command hash of 1-16 chars, got %q", suffix)
	}

	other := SessionKey("u1", "proj", "", "npm run build")
	if other == withCmd {
		t.Error("Expected distinct commands to yield distinct keys")
	}
}

func TestIsLoginCommand(t *testing.T) {
	tests := []struct {
		cmd  string
		want bool
	}{
		{"", false},
		{"claude setup-token", true},
		{"cursor-agent auth login", true},
		{"claude login", true},
		{"login", false},
		{"npm run dev", false},
		{"ls -la", false},
	}

	for _, tt := range tests {
		if got := IsLoginCommand(tt.cmd); got != tt.want {
			t.Errorf("IsLoginCommand(%q): expected %v, got %v", tt.cmd, tt.want, got)
		}
	}
}
