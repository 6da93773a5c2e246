// Package stream turns Docker exec streams into typed events.
//
// A non-TTY exec returns a single hijacked duplex stream with stdout and
// stderr multiplexed behind header frames. The demuxer splits the two,
// parses line-delimited JSON progress objects off stdout, and decides after
// EOF whether stderr was diagnostic noise or a real failure.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/docker/docker/pkg/stdcopy"
)

// sdkDebugPrefix marks stderr lines that are SDK diagnostics, never errors.
const sdkDebugPrefix = "[SDK]"

// maxLineBytes bounds a single stdout line during JSON scanning.
const maxLineBytes = 1024 * 1024

// Event is one typed message produced from an exec stream.
type Event struct {
	Type string
	// Raw holds the full JSON object for recognized typed events.
	Raw json.RawMessage
	// Data holds plain text for fallback output events.
	Data string
}

// recognizedTypes are the SDK progress object types forwarded as-is.
// Anything else on stdout becomes a fallback output event.
var recognizedTypes = map[string]bool{
	"content":       true,
	"done":          true,
	"error":         true,
	"session_start": true,
	"tool_use":      true,
	"tool_result":   true,
}

// Node-style error signatures on stderr. A stderr stream that matches none
// of these is treated as diagnostic output only.
var (
	nodeErrorRe   = regexp.MustCompile(`(?m)^\s*[A-Za-z]*Error: `)
	stackFrameRe  = regexp.MustCompile(`(?m)^\s+at\s+\S`)
	processExitRe = regexp.MustCompile(`process\.exit\(1\)`)
)

// ExecError reports a true in-container failure detected on stderr.
type ExecError struct {
	Stderr string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("exec failed: %s", firstLine(e.Stderr))
}

// Demux reads a multiplexed exec stream to EOF, emitting one Event per
// stdout line. It returns an *ExecError if stderr carries a recognized
// error signature, and nil when the stream ended cleanly.
func Demux(r io.Reader, emit func(Event)) error {
	outR, outW := io.Pipe()
	var stderr lockedBuffer

	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(outW, &stderr, r)
		outW.CloseWithError(err) //nolint:errcheck // CloseWithError always returns nil
		copyDone <- err
	}()

	scanner := bufio.NewScanner(outR)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		emitLine(scanner.Text(), emit)
	}
	// Drain so the copier goroutine can finish even after a scan error.
	_, _ = io.Copy(io.Discard, outR)

	if err := <-copyDone; err != nil && err != io.EOF {
		return fmt.Errorf("demux exec stream: %w", err)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("scan exec stdout: %w", scanErr)
	}

	if errText := stderr.String(); IsTrueError(errText) {
		return &ExecError{Stderr: strings.TrimSpace(errText)}
	}
	return nil
}

func emitLine(line string, emit func(Event)) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	if strings.HasPrefix(trimmed, "{") {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(trimmed), &probe); err == nil && recognizedTypes[probe.Type] {
			emit(Event{Type: probe.Type, Raw: json.RawMessage(trimmed)})
			return
		}
	}

	emit(Event{Type: "output", Data: line})
}

// IsTrueError reports whether stderr output represents a real failure
// rather than SDK diagnostics.
func IsTrueError(stderr string) bool {
	if strings.TrimSpace(stderr) == "" {
		return false
	}

	var meaningful []string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), sdkDebugPrefix) {
			continue
		}
		meaningful = append(meaningful, line)
	}
	rest := strings.Join(meaningful, "\n")
	if strings.TrimSpace(rest) == "" {
		return false
	}

	return nodeErrorRe.MatchString(rest) ||
		stackFrameRe.MatchString(rest) ||
		processExitRe.MatchString(rest)
}

// Collect reads a multiplexed exec stream to EOF and returns the split
// stdout and stderr contents. Used for one-shot command execs where the
// caller wants the whole output.
func Collect(r io.Reader) (stdout, stderr []byte, err error) {
	var out, errBuf bytes.Buffer
	if _, copyErr := stdcopy.StdCopy(&out, &errBuf, r); copyErr != nil && copyErr != io.EOF {
		return nil, nil, fmt.Errorf("collect exec stream: %w", copyErr)
	}
	return out.Bytes(), errBuf.Bytes(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// lockedBuffer is a goroutine-safe bytes.Buffer; StdCopy writes stderr from
// the copier goroutine while Demux reads the total after EOF.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
