package files

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Errors surfaced at the gateway boundary.
var (
	ErrPathInvalid = errors.New("invalid path")
	ErrNotFound    = errors.New("not found")
	ErrTooLarge    = errors.New("content too large")
)

// shellMeta are the characters that must never reach a composed command.
const shellMeta = ";&|$`\n"

// Target names a location inside a user's container.
type Target struct {
	ProjectPath        string
	IsContainerProject bool
	// Path is workspace-relative; empty means the base itself.
	Path string
}

// validateRel rejects anything that could escape the base or alter a
// composed command. Rejection happens before any command is built, so a
// bad path never reaches the container.
func validateRel(p string) error {
	if p == "" {
		return nil
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: absolute path", ErrPathInvalid)
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("%w: NUL byte", ErrPathInvalid)
	}
	if strings.ContainsAny(p, shellMeta) {
		return fmt.Errorf("%w: shell metacharacter", ErrPathInvalid)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: parent traversal", ErrPathInvalid)
		}
	}
	return nil
}

// resolve turns a target into an absolute in-container path.
//
// Container-native projects live under the projects root. Everything else
// resolves under /workspace, with any host prefix up to the first ':'
// stripped from the project path.
func resolve(projectsRoot string, t Target) (string, error) {
	projectPath := t.ProjectPath
	if !t.IsContainerProject {
		if i := strings.Index(projectPath, ":"); i >= 0 {
			projectPath = projectPath[i+1:]
		}
	}
	if err := validateRel(projectPath); err != nil {
		return "", err
	}
	if err := validateRel(t.Path); err != nil {
		return "", err
	}

	base := "/workspace"
	if t.IsContainerProject {
		base = projectsRoot
	}
	full := path.Join(base, projectPath, t.Path)

	// path.Join cleans the result; a clean path still under the base is
	// the final guarantee.
	if full != base && !strings.HasPrefix(full, base+"/") {
		return "", fmt.Errorf("%w: escapes base", ErrPathInvalid)
	}
	return full, nil
}

// shellQuote single-quotes a string for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
