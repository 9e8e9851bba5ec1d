//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs puts the re-exec'd daemon in its own session so it
// survives the parent CLI's terminal going away.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shutdownSignals lists the signals that trigger a graceful daemon stop.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// sigTERM is the soft stop sent by `serve stop`.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL is the hard stop used when the daemon ignores the soft one.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
