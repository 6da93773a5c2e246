package container

import (
	"io"

	"github.com/docker/docker/api/types"
)

// Stream is the duplex byte stream attached to a container exec.
//
// For TTY execs the stream carries raw terminal bytes; for non-TTY execs it
// carries the Docker multiplexed format and must go through the stream
// package demuxer.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	// CloseWrite half-closes the stream so the in-container command sees
	// EOF on stdin.
	CloseWrite() error
}

// ExecOptions configures a one-shot command exec.
type ExecOptions struct {
	Cwd   string
	Env   []string
	TTY   bool
	Stdin bool
	Tier  string // tier used if the container must be created first
}

// ShellOptions configures an interactive TTY shell exec.
type ShellOptions struct {
	WorkingDir string
	Cols       uint
	Rows       uint
	Tier       string
}

// hijackedStream adapts Docker's hijacked exec response to Stream.
type hijackedStream struct {
	resp types.HijackedResponse
}

func (s *hijackedStream) Read(p []byte) (int, error) {
	return s.resp.Reader.Read(p)
}

func (s *hijackedStream) Write(p []byte) (int, error) {
	return s.resp.Conn.Write(p)
}

func (s *hijackedStream) Close() error {
	s.resp.Close()
	return nil
}

func (s *hijackedStream) CloseWrite() error {
	return s.resp.CloseWrite()
}
