// Package runner spawns the external status tools (zpool, mdadm, dmsetup,
// sysctl, lsblk) and hands their output back. Resolution code depends on the
// Runner interface so tests can substitute canned output.
package runner

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrNotInstalled is returned when the requested tool is not on PATH.
var ErrNotInstalled = errors.New("command not found")

// Runner runs a command to completion and returns its standard output.
type Runner interface {
	Output(name string, args ...string) ([]byte, error)
	Available(name string) bool
}

// Exec is the os/exec backed Runner. Commands are waited for synchronously
// and are not subject to a timeout.
type Exec struct {
	Logger *logrus.Logger
}

// Output runs name with args. A non-zero exit status is an error that
// carries the tool's stderr.
func (e *Exec) Output(name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	if e.Logger != nil {
		e.Logger.Debugf("running %s %s", name, strings.Join(args, " "))
	}

	var stderr bytes.Buffer
	cmd := exec.Command(path, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s failed: %s: %w", name, strings.TrimSpace(stderr.String()), err)
	}
	return out, nil
}

// Available reports whether name resolves on PATH.
func (e *Exec) Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Static returns canned output keyed by the full command line
// ("zpool status tank"). Commands without an entry behave as not installed.
type Static struct {
	Outputs map[string]string
	Errors  map[string]error
	// Calls records every command line requested, in order.
	Calls []string
}

// Output returns the canned output for the command line.
func (s *Static) Output(name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	s.Calls = append(s.Calls, line)
	if err, ok := s.Errors[line]; ok {
		return []byte(s.Outputs[line]), err
	}
	out, ok := s.Outputs[line]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	return []byte(out), nil
}

// Available reports whether any canned command line starts with name.
func (s *Static) Available(name string) bool {
	for line := range s.Outputs {
		if line == name || strings.HasPrefix(line, name+" ") {
			return true
		}
	}
	for line := range s.Errors {
		if line == name || strings.HasPrefix(line, name+" ") {
			return true
		}
	}
	return false
}
