package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/tristo-bit/skhoot-terminal/internal/service"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// newLogger builds the shared slog logger. Logs go to stderr so the MCP
// stdio transport keeps stdout to itself.
func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newService wires a session service from configuration. The caller owns
// its lifecycle and must call Shutdown when done.
func newService(logw io.Writer) (*service.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	tr := transport.NewHTTPTransport(viper.GetString("backend.url"), nil)
	svc := service.New(tr, s, newLogger(logw), service.Config{
		PollInterval:   viper.GetDuration("poll.interval"),
		BufferCapacity: viper.GetInt("buffer.capacity"),
		MaxReconnects:  viper.GetInt("recovery.max_attempts"),
	})
	return svc, nil
}
