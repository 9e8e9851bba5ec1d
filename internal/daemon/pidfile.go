// Package daemon tracks the background serve process through a pid file,
// so start/stop/status invocations from a fresh CLI process can find the
// daemon they did not spawn.
package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PIDFile is a handle to one pid file on disk. The file holds a single
// decimal pid followed by a newline; anything else is treated as corrupt.
type PIDFile struct {
	Path string
}

// NewPIDFile returns a handle for the pid file at path. Nothing is touched
// on disk until Write or Read.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the calling process as the daemon.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID records an arbitrary pid, replacing any previous content.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read returns the recorded pid. A missing file surfaces as-is so callers
// can distinguish "never started" from a corrupt file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the pid file after the daemon exits.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
