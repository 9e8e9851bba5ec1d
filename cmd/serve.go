package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tristo-bit/skhoot-terminal/internal/api"
	"github.com/tristo-bit/skhoot-terminal/internal/daemon"
)

var serveForeground bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the terminal sync daemon",
	Long: `Run the daemon that exposes the session layer to the desktop UI:
a REST API plus a WebSocket event stream on the configured port.

'serve' without a subcommand starts the daemon in the background.
Use --foreground to keep it attached to the current terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveForeground {
			return serveRun()
		}
		return serveStartRun()
	},
}

var serveRunCmd = &cobra.Command{
	Use:    "run",
	Hidden: true, // internal re-exec target for background start
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveForeground, "foreground", false, "Run in the foreground instead of daemonizing")
	serveCmd.Flags().IntP("port", "p", 8742, "Port to listen on")
	_ = viper.BindPFlag("api.port", serveCmd.Flags().Lookup("port"))

	serveCmd.AddCommand(serveRunCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "skhoot-term-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "skhoot-term-serve.log")
}

// serveStartRun forks the daemon into the background and returns.
func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	if err := os.MkdirAll(viper.GetString("state_dir"), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(self, "serve", "run")
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	ui.Success("Daemon started (pid %d) on port %d", child.Process.Pid, viper.GetInt("api.port"))
	ui.VerboseLog("logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return errors.New("daemon not running")
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}

	// Give it a moment to exit cleanly before escalating.
	for i := 0; i < 20; i++ {
		if _, alive := pf.IsRunning(); !alive {
			_ = pf.Remove()
			ui.Success("Daemon stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = pf.Signal(sigKILL())
	_ = pf.Remove()
	ui.Warning("Daemon killed after timeout (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		ui.Info("Daemon running (pid %d) on port %d", pid, viper.GetInt("api.port"))
		return nil
	}
	ui.Info("Daemon not running")
	return nil
}

// serveRun is the actual daemon body: service + HTTP server until signal.
func serveRun() error {
	logFile := os.Stderr

	svc, err := newService(logFile)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	handler := api.NewServer(svc, newLogger(logFile)).Router()
	addr := fmt.Sprintf(":%d", viper.GetInt("api.port"))
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals()...)

	fmt.Fprintf(os.Stderr, "skhoot-term daemon listening on %s\n", addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "received %v, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
