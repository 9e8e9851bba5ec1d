//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op: Windows has no session to detach into.
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals lists the signals that trigger a graceful daemon stop.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// sigTERM is the soft stop sent by `serve stop`.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL is the hard stop used when the daemon ignores the soft one.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
