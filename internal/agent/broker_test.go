package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/agentdock/agentdock/internal/config"
	"github.com/agentdock/agentdock/internal/container"
	"github.com/agentdock/agentdock/internal/domain"
)

// muxed builds a Docker-multiplexed exec payload.
func muxed(t *testing.T, stdout, stderr string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if stdout != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout)); err != nil {
			t.Fatalf("Failed to frame stdout: %v", err)
		}
	}
	if stderr != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr)); err != nil {
			t.Fatalf("Failed to frame stderr: %v", err)
		}
	}
	return buf.Bytes()
}

// fakeExecStream serves fixed multiplexed data. With hold set, the stream
// stays open after the data drains until Close is called.
type fakeExecStream struct {
	data *bytes.Reader
	hold bool
	done chan struct{}
	once sync.Once
}

func newFakeExecStream(data []byte, hold bool) *fakeExecStream {
	return &fakeExecStream{data: bytes.NewReader(data), hold: hold, done: make(chan struct{})}
}

func (s *fakeExecStream) Read(p []byte) (int, error) {
	n, err := s.data.Read(p)
	if errors.Is(err, io.EOF) && s.hold {
		<-s.done
		return 0, io.EOF
	}
	return n, err
}

func (s *fakeExecStream) Write(p []byte) (int, error) { return len(p), nil }

func (s *fakeExecStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeExecStream) CloseWrite() error { return nil }

func (s *fakeExecStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type fakeAgentRuntime struct {
	mu      sync.Mutex
	stream  *fakeExecStream
	lastCmd []string
	lastOpt container.ExecOptions
}

func (r *fakeAgentRuntime) GetOrCreate(ctx context.Context, userID, tier string) (*domain.ContainerInfo, error) {
	return &domain.ContainerInfo{ContainerID: "c1", UserID: userID, Status: domain.ContainerRunning}, nil
}

func (r *fakeAgentRuntime) Exec(ctx context.Context, userID string, cmd []string, opts container.ExecOptions) (string, container.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCmd = cmd
	r.lastOpt = opts
	return "e1", r.stream, nil
}

// captureWriter records every message, normalized to maps.
type captureWriter struct {
	mu   sync.Mutex
	msgs []map[string]interface{}
}

func (w *captureWriter) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, m)
	return nil
}

func (w *captureWriter) types() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, m := range w.msgs {
		if t, ok := m["type"].(string); ok {
			out = append(out, t)
		}
	}
	return out
}

func (w *captureWriter) find(typ string) map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range w.msgs {
		if m["type"] == typ {
			return m
		}
	}
	return nil
}

func brokerConfig() *config.Config {
	return &config.Config{
		ProjectsRoot:  "/projects",
		SDKEntrypoint: "/app/sdk/run.mjs",
		Timeout:       config.TimeoutConfig{Query: 5 * time.Second},
	}
}

func await(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", msg)
}

func TestRunQuery_StreamsEventsAndCompletes(t *testing.T) {
	stdout := `{"type":"content","chunk":"hello"}` + "\n" + "plain progress line\n"
	rt := &fakeAgentRuntime{stream: newFakeExecStream(muxed(t, stdout, ""), false)}
	b := NewBroker(domain.ProviderClaude, rt, brokerConfig())
	w := &captureWriter{}

	sessionID, err := b.RunQuery(context.Background(), "u1", "do things", nil, w)
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if sessionID == "" {
		t.Fatal("Expected generated session ID")
	}

	await(t, func() bool { return w.find("done") != nil }, "done event")

	types := w.types()
	if types[0] != "session_start" {
		t.Errorf("Expected session_start first, got %v", types)
	}
	content := w.find("content")
	if content == nil || content["chunk"] != "hello" {
		t.Errorf("Expected content event forwarded verbatim, got %v", content)
	}
	output := w.find("output")
	if output == nil || output["data"] != "plain progress line" {
		t.Errorf("Expected plain stdout as output event, got %v", output)
	}

	await(t, func() bool { return !b.IsActive(sessionID) }, "session completion")
	if rec := b.Get(sessionID); rec.Status != domain.SessionCompleted {
		t.Errorf("Expected completed status, got %s", rec.Status)
	}
}

func TestRunQuery_PassesCwdAndPayload(t *testing.T) {
	rt := &fakeAgentRuntime{stream: newFakeExecStream(nil, false)}
	b := NewBroker(domain.ProviderClaude, rt, brokerConfig())
	w := &captureWriter{}

	options := map[string]interface{}{
		"isContainerProject": true,
		"projectPath":        "my-workspace",
	}
	if _, err := b.RunQuery(context.Background(), "u1", "hi", options, w); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.lastOpt.Cwd != "/projects/my-workspace" {
		t.Errorf("Expected container project cwd, got %q", rt.lastOpt.Cwd)
	}
	if len(rt.lastCmd) != 3 || rt.lastCmd[0] != "node" || rt.lastCmd[1] != "/app/sdk/run.mjs" {
		t.Errorf("Expected node entrypoint command, got %v", rt.lastCmd)
	}
}

func TestRunQuery_RejectsDuplicateActiveSession(t *testing.T) {
	rt := &fakeAgentRuntime{stream: newFakeExecStream(nil, true)}
	b := NewBroker(domain.ProviderCursor, rt, brokerConfig())

	options := map[string]interface{}{"sessionId": "s1"}
	if _, err := b.RunQuery(context.Background(), "u1", "first", options, &captureWriter{}); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}

	_, err := b.RunQuery(context.Background(), "u1", "second", options, &captureWriter{})
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("Expected ErrSessionActive, got %v", err)
	}

	b.Abort("s1")
}

func TestAbort_IsTerminal(t *testing.T) {
	stream := newFakeExecStream(nil, true)
	rt := &fakeAgentRuntime{stream: stream}
	b := NewBroker(domain.ProviderClaude, rt, brokerConfig())
	w := &captureWriter{}

	options := map[string]interface{}{"sessionId": "s1"}
	if _, err := b.RunQuery(context.Background(), "u1", "long task", options, w); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}

	if !b.Abort("s1") {
		t.Fatal("Expected abort of running session to succeed")
	}
	if b.IsActive("s1") {
		t.Error("Expected session inactive immediately after abort")
	}
	if b.Abort("s1") {
		t.Error("Expected second abort to report false")
	}

	await(t, stream.closed, "stream teardown after abort")
	time.Sleep(20 * time.Millisecond)

	for _, typ := range w.types() {
		if typ == "done" {
			t.Error("Expected no done event after abort")
		}
	}
	if rec := b.Get("s1"); rec.Status != domain.SessionAborted {
		t.Errorf("Expected aborted status, got %s", rec.Status)
	}
}

// stallWriter parks inside Send on the first content event until released.
type stallWriter struct {
	captureWriter
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stallWriter) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m["type"] == "content" {
		w.once.Do(func() { close(w.entered) })
		<-w.release
	}
	return w.captureWriter.Send(v)
}

func TestAbort_WaitsForInFlightFrame(t *testing.T) {
	stdout := `{"type":"content","chunk":"hello"}` + "\n"
	stream := newFakeExecStream(muxed(t, stdout, ""), true)
	rt := &fakeAgentRuntime{stream: stream}
	b := NewBroker(domain.ProviderClaude, rt, brokerConfig())
	w := &stallWriter{entered: make(chan struct{}), release: make(chan struct{})}

	options := map[string]interface{}{"sessionId": "s1"}
	if _, err := b.RunQuery(context.Background(), "u1", "task", options, w); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}

	<-w.entered

	aborted := make(chan bool)
	go func() { aborted <- b.Abort("s1") }()

	select {
	case <-aborted:
		t.Fatal("Expected Abort to wait for the in-flight frame")
	case <-time.After(50 * time.Millisecond):
	}

	close(w.release)
	if ok := <-aborted; !ok {
		t.Fatal("Expected abort of running session to succeed")
	}
	if w.find("content") == nil {
		t.Error("Expected the in-flight frame delivered before abort returned")
	}

	frames := len(w.types())
	time.Sleep(20 * time.Millisecond)
	if got := len(w.types()); got != frames {
		t.Errorf("Expected no delivery after abort returned, got %d extra frames", got-frames)
	}
}

func TestRunQuery_StderrErrorSignature(t *testing.T) {
	stderr := "TypeError: boom\n    at run (/app/sdk/run.mjs:10:3)\n"
	rt := &fakeAgentRuntime{stream: newFakeExecStream(muxed(t, "", stderr), false)}
	b := NewBroker(domain.ProviderClaude, rt, brokerConfig())
	w := &captureWriter{}

	sessionID, err := b.RunQuery(context.Background(), "u1", "break", nil, w)
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}

	await(t, func() bool { return w.find("error") != nil }, "error event")
	errEvent := w.find("error")
	if msg, _ := errEvent["error"].(string); msg == "" {
		t.Errorf("Expected stderr carried in error event, got %v", errEvent)
	}

	await(t, func() bool { return !b.IsActive(sessionID) }, "session settle")
	if rec := b.Get(sessionID); rec.Status != domain.SessionError {
		t.Errorf("Expected error status, got %s", rec.Status)
	}
}

func TestListActive(t *testing.T) {
	rt := &fakeAgentRuntime{stream: newFakeExecStream(nil, true)}
	b := NewBroker(domain.ProviderCodex, rt, brokerConfig())

	if _, err := b.RunQuery(context.Background(), "u1", "task", map[string]interface{}{"sessionId": "s1"}, &captureWriter{}); err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}

	active := b.ListActive()
	if len(active) != 1 || active[0].SessionID != "s1" {
		t.Fatalf("Expected one active session s1, got %v", active)
	}

	b.Abort("s1")
	if got := b.ListActive(); len(got) != 0 {
		t.Errorf("Expected no active sessions after abort, got %d", len(got))
	}
}
