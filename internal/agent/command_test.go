package agent

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestFilterSDKOptions(t *testing.T) {
	options := map[string]interface{}{
		"userId":             "u1",
		"isContainerProject": true,
		"projectPath":        "proj",
		"sessionId":          "s1",
		"maxTurns":           float64(5),
	}

	filtered := filterSDKOptions(options)

	for _, dropped := range []string{"userId", "isContainerProject", "projectPath"} {
		if _, ok := filtered[dropped]; ok {
			t.Errorf("Expected %q stripped from SDK options", dropped)
		}
	}
	if filtered["sessionId"] != "s1" {
		t.Errorf("Expected sessionId kept, got %v", filtered["sessionId"])
	}
	if filtered["maxTurns"] != float64(5) {
		t.Errorf("Expected maxTurns kept, got %v", filtered["maxTurns"])
	}
}

func TestFilterSDKOptions_DropsCustomModel(t *testing.T) {
	filtered := filterSDKOptions(map[string]interface{}{"model": "custom"})
	if _, ok := filtered["model"]; ok {
		t.Error("Expected model=custom dropped")
	}

	filtered = filterSDKOptions(map[string]interface{}{"model": "sonnet"})
	if filtered["model"] != "sonnet" {
		t.Errorf("Expected explicit model kept, got %v", filtered["model"])
	}
}

func TestResolveCwd(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]interface{}
		want    string
	}{
		{
			name: "container project",
			options: map[string]interface{}{
				"isContainerProject": true,
				"projectPath":        "my-workspace",
			},
			want: "/projects/my-workspace",
		},
		{
			name:    "host cwd keeps basename only",
			options: map[string]interface{}{"cwd": "/home/alice/repos/demo"},
			want:    "/workspace/demo",
		},
		{
			name:    "no hints",
			options: map[string]interface{}{},
			want:    "/workspace",
		},
		{
			name: "container flag without path falls through",
			options: map[string]interface{}{
				"isContainerProject": true,
				"cwd":                "demo",
			},
			want: "/workspace/demo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveCwd("/projects", tt.options); got != tt.want {
				t.Errorf("Expected cwd %q, got %q", tt.want, got)
			}
		})
	}
}

func TestBuildExecCommand(t *testing.T) {
	cmd, err := buildExecCommand("/app/sdk/run.mjs", "fix the tests", map[string]interface{}{"sessionId": "s1"})
	if err != nil {
		t.Fatalf("buildExecCommand failed: %v", err)
	}

	if len(cmd) != 3 || cmd[0] != "node" || cmd[1] != "/app/sdk/run.mjs" {
		t.Fatalf("Expected node entrypoint invocation, got %v", cmd)
	}

	decoded, err := base64.StdEncoding.DecodeString(cmd[2])
	if err != nil {
		t.Fatalf("Expected base64 payload, got %q: %v", cmd[2], err)
	}

	var payload struct {
		Command string                 `json:"command"`
		Options map[string]interface{} `json:"options"`
	}
	if err := json.Unmarshal(decoded, &payload); err != nil {
		t.Fatalf("Expected JSON payload: %v", err)
	}
	if payload.Command != "fix the tests" {
		t.Errorf("Expected command round-tripped, got %q", payload.Command)
	}
	if payload.Options["sessionId"] != "s1" {
		t.Errorf("Expected options round-tripped, got %v", payload.Options)
	}
}

func TestBuildExecCommand_ShellSafePayload(t *testing.T) {
	cmd, err := buildExecCommand("/app/sdk/run.mjs", `echo "hi"; rm -rf /`, nil)
	if err != nil {
		t.Fatalf("buildExecCommand failed: %v", err)
	}
	for _, c := range cmd[2] {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/', c == '=':
		default:
			t.Fatalf("Expected base64 alphabet only, found %q", c)
		}
	}
}
