package files

import (
	"errors"
	"testing"
)

func TestValidateRel(t *testing.T) {
	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"empty", "", true},
		{"simple", "src/main.go", true},
		{"dotfile", ".gitignore", true},
		{"absolute", "/etc/passwd", false},
		{"parent traversal", "../secrets", false},
		{"nested traversal", "a/../../b", false},
		{"embedded dots in name", "a..b/file", true},
		{"nul byte", "a\x00b", false},
		{"semicolon", "a;rm -rf /", false},
		{"pipe", "a|b", false},
		{"ampersand", "a&b", false},
		{"dollar", "a$(id)", false},
		{"backtick", "a`id`", false},
		{"newline", "a\nb", false},
		{"spaces ok", "my file.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRel(tt.path)
			if tt.ok && err != nil {
				t.Errorf("Expected %q valid, got %v", tt.path, err)
			}
			if !tt.ok {
				if !errors.Is(err, ErrPathInvalid) {
					t.Errorf("Expected ErrPathInvalid for %q, got %v", tt.path, err)
				}
			}
		})
	}
}

func TestResolve(t *testing.T) {
	const root = "/home/node/.claude/projects"

	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{
			name:   "container project",
			target: Target{ProjectPath: "my-workspace", IsContainerProject: true, Path: "src/app.ts"},
			want:   root + "/my-workspace/src/app.ts",
		},
		{
			name:   "workspace project",
			target: Target{ProjectPath: "demo", Path: "README.md"},
			want:   "/workspace/demo/README.md",
		},
		{
			name:   "host prefix stripped",
			target: Target{ProjectPath: "C:demo", Path: "main.go"},
			want:   "/workspace/demo/main.go",
		},
		{
			name:   "empty path yields base",
			target: Target{ProjectPath: "demo"},
			want:   "/workspace/demo",
		},
		{
			name:   "empty everything yields workspace",
			target: Target{},
			want:   "/workspace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolve(root, tt.target)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	targets := []Target{
		{ProjectPath: "..", IsContainerProject: true},
		{ProjectPath: "proj", IsContainerProject: true, Path: "../other"},
		{ProjectPath: "proj", Path: "/abs"},
		{ProjectPath: "proj;true", Path: "file"},
	}
	for _, target := range targets {
		if _, err := resolve("/projects", target); !errors.Is(err, ErrPathInvalid) {
			t.Errorf("Expected ErrPathInvalid for %+v, got %v", target, err)
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}
