package pty

import (
	"strings"
	"testing"
)

func TestDetectURLs(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  []string
	}{
		{
			name:  "xdg-open",
			chunk: "xdg-open https://example.com/login\r\n",
			want:  []string{"https://example.com/login"},
		},
		{
			name:  "open url marker",
			chunk: `OPEN_URL: https://auth.example.com/device`,
			want:  []string{"https://auth.example.com/device"},
		},
		{
			name:  "visit prompt",
			chunk: "Visit: https://example.com/code\n",
			want:  []string{"https://example.com/code"},
		},
		{
			name:  "duplicate urls deduped",
			chunk: "Opening https://a.example.com\nVisit: https://a.example.com\n",
			want:  []string{"https://a.example.com"},
		},
		{
			name:  "plain output",
			chunk: "total 4\ndrwxr-xr-x 2 node node\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urls, _ := DetectURLs(tt.chunk)
			if len(urls) != len(tt.want) {
				t.Fatalf("Expected %d urls, got %d (%v)", len(tt.want), len(urls), urls)
			}
			for i := range tt.want {
				if urls[i] != tt.want[i] {
					t.Errorf("Expected url %q, got %q", tt.want[i], urls[i])
				}
			}
		})
	}
}

func TestDetectURLs_RewritesOpenURL(t *testing.T) {
	_, passthrough := DetectURLs("OPEN_URL: https://example.com/device\r\n")
	if !strings.Contains(passthrough, "[INFO] Opening in browser: https://example.com/device") {
		t.Errorf("Expected OPEN_URL rewritten, got %q", passthrough)
	}
	if strings.Contains(passthrough, "OPEN_URL") {
		t.Errorf("Expected OPEN_URL marker removed, got %q", passthrough)
	}
}

func TestDetectURLs_PassthroughUnchangedOtherwise(t *testing.T) {
	chunk := "Visit: https://example.com/code\n"
	_, passthrough := DetectURLs(chunk)
	if passthrough != chunk {
		t.Errorf("Expected passthrough unchanged, got %q", passthrough)
	}
}
