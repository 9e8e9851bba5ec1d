package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
	"github.com/tristo-bit/skhoot-terminal/internal/output"
	"github.com/tristo-bit/skhoot-terminal/internal/service"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

var (
	sessionsAll     bool
	sessionKind     string
	sessionWorkDir  string
	sessionHistoryN int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage terminal sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun()
	},
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List terminal sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun()
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new terminal session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsCreateRun()
	},
}

var sessionsWriteCmd = &cobra.Command{
	Use:   "write <session-id> <data>",
	Short: "Send input to a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsWriteRun(args[0], strings.Join(args[1:], " "))
	},
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a terminal session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsCloseRun(args[0])
	},
}

var sessionsInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Show a session's state and command history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsInspectRun(args[0])
	},
}

func init() {
	sessionsListCmd.Flags().BoolVarP(&sessionsAll, "all", "a", false, "Include closed sessions")
	sessionsCreateCmd.Flags().StringVar(&sessionKind, "kind", "shell", "Session kind: shell, agent-shell, log-view")
	sessionsCreateCmd.Flags().StringVar(&sessionWorkDir, "workdir", "", "Workspace root for the shell")
	sessionsInspectCmd.Flags().IntVar(&sessionHistoryN, "limit", 20, "Max history entries to show")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsWriteCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
	sessionsCmd.AddCommand(sessionsInspectCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func backendTransport() *transport.HTTPTransport {
	return transport.NewHTTPTransport(viper.GetString("backend.url"), nil)
}

// sessionsListRun joins the backend's live list with the durable records,
// which carry kind and ownership the backend does not track.
func sessionsListRun() error {
	ctx := rootCmd.Context()
	s, err := getStore()
	if err != nil {
		return err
	}

	records, err := s.ListSessions(ctx, sessionsAll)
	if err != nil {
		return err
	}

	liveStates := map[string]string{}
	if remote, err := backendTransport().ListSessions(ctx); err == nil {
		for _, r := range remote {
			liveStates[r.SessionID] = r.State
		}
	} else {
		ui.Warning("backend unreachable: %v", err)
	}

	if len(records) == 0 {
		ui.Info("No sessions")
		return nil
	}

	table := ui.Table([]string{"ID", "Kind", "By", "State", "Created"})
	for _, rec := range records {
		state := rec.State
		if live, ok := liveStates[rec.ID]; ok {
			state = live
		}
		table.Append([]string{
			rec.ID,
			output.KindColor(string(rec.Kind)),
			string(rec.CreatedBy),
			output.StatusColor(state),
			rec.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return table.Render()
}

func sessionsCreateRun() error {
	svc, err := newService(nil)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	sess, err := svc.CreateSession(rootCmd.Context(), service.CreateOptions{
		Kind:          models.SessionKind(sessionKind),
		CreatedBy:     models.CreatedByUser,
		WorkspaceRoot: sessionWorkDir,
	})
	if err != nil {
		return err
	}
	ui.Success("Created session %s (%s)", output.Cyan(sess.ID), sess.Kind)
	return nil
}

func sessionsWriteRun(sessionID, data string) error {
	err := backendTransport().Write(rootCmd.Context(), sessionID, data+"\n")
	if err != nil {
		return err
	}
	ui.Success("Sent to %s", sessionID)
	return nil
}

func sessionsCloseRun(sessionID string) error {
	ctx := rootCmd.Context()
	if err := backendTransport().CloseSession(ctx, sessionID); err != nil {
		ui.Warning("remote close failed: %v", err)
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.MarkSessionClosed(ctx, sessionID); err != nil {
		return err
	}
	ui.Success("Closed session %s", sessionID)
	return nil
}

func sessionsInspectRun(sessionID string) error {
	ctx := rootCmd.Context()
	s, err := getStore()
	if err != nil {
		return err
	}

	rec, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	state := rec.State
	if live, err := backendTransport().SessionState(ctx, sessionID); err == nil {
		state = live
	}

	ui.Info("Session %s", output.Cyan(rec.ID))
	fmt.Fprintf(ui.Out, "  kind:       %s\n", output.KindColor(string(rec.Kind)))
	fmt.Fprintf(ui.Out, "  created by: %s\n", rec.CreatedBy)
	fmt.Fprintf(ui.Out, "  state:      %s\n", output.StatusColor(state))
	if rec.WorkspaceRoot != "" {
		fmt.Fprintf(ui.Out, "  workspace:  %s\n", rec.WorkspaceRoot)
	}
	fmt.Fprintf(ui.Out, "  created:    %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	if rec.ClosedAt != nil {
		fmt.Fprintf(ui.Out, "  closed:     %s\n", rec.ClosedAt.Local().Format(time.DateTime))
	}

	commands, err := s.ListCommands(ctx, sessionID, sessionHistoryN)
	if err != nil {
		return err
	}
	if len(commands) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"When", "Source", "Command"})
		for _, c := range commands {
			table.Append([]string{
				c.ExecutedAt.Local().Format(time.TimeOnly),
				string(c.Source),
				c.Command,
			})
		}
		return table.Render()
	}
	return nil
}
