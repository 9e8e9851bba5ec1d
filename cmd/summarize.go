package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tristo-bit/skhoot-terminal/internal/llm"
	"github.com/tristo-bit/skhoot-terminal/internal/output"
	"github.com/tristo-bit/skhoot-terminal/internal/poller"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <session-id>",
	Short: "Summarize a session's recent output with the configured LLM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return summarizeRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func summarizeRun(sessionID string) error {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		return errors.New("no API key configured (set anthropic.api_key or SKHOOT_ANTHROPIC_API_KEY)")
	}

	ctx := rootCmd.Context()

	chunks, err := backendTransport().SessionHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		ui.Info("Session %s has no output to summarize", sessionID)
		return nil
	}

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(poller.StripANSI(c.Content))
		sb.WriteString("\n")
	}

	// The last recorded command gives the LLM context for what the
	// output was supposed to achieve.
	var lastCommand string
	if s, err := getStore(); err == nil {
		if commands, err := s.ListCommands(ctx, sessionID, 0); err == nil && len(commands) > 0 {
			lastCommand = commands[len(commands)-1].Command
		}
	}

	client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
	summary, err := client.Summarize(ctx, lastCommand, sb.String())
	if err != nil {
		return err
	}

	if summary.Succeeded {
		ui.Success("%s", summary.Headline)
	} else {
		ui.Warning("%s", summary.Headline)
	}
	if summary.Details != "" {
		fmt.Fprintf(ui.Out, "\n%s\n", summary.Details)
	}
	if len(summary.Errors) > 0 {
		fmt.Fprintln(ui.Out)
		for _, e := range summary.Errors {
			fmt.Fprintf(ui.Out, "  %s %s\n", output.Red("error:"), e)
		}
	}
	return nil
}
