// Package llm wraps the Anthropic API for terminal output summarization.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Summary holds the LLM's reading of a terminal session's recent output.
type Summary struct {
	Headline  string   `json:"headline"`
	Details   string   `json:"details"`
	Errors    []string `json:"errors"`
	Succeeded bool     `json:"succeeded"`
}

// Client wraps the Anthropic API.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for summarization.
func buildPrompt(command, output string) (system string, user string) {
	system = `You summarize terminal output for a desktop assistant. Return ONLY a JSON object with these fields:
- "headline": one sentence stating what happened (e.g. "Tests passed", "Build failed with 3 compile errors")
- "details": 1-4 sentences of relevant specifics (counts, file names, durations)
- "errors": array of distinct error messages found in the output, empty array if none
- "succeeded": boolean, best judgement of whether the command achieved what it was asked to do

Rules:
- Base the summary only on the provided output, never invent results
- Quote error text verbatim where possible, trimmed to one line each
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if command != "" {
		sb.WriteString("Command that was run: ")
		sb.WriteString(command)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Terminal output:\n\n")
	sb.WriteString(output)
	user = sb.String()
	return
}

// Summarize sends terminal output to the LLM and returns a structured
// summary. command may be empty when the scrollback spans several commands.
func (c *Client) Summarize(ctx context.Context, command, output string) (*Summary, error) {
	systemPrompt, userPrompt := buildPrompt(command, output)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseSummary(text)
}

// parseSummary decodes the model's JSON reply, tolerating markdown fencing.
func parseSummary(text string) (*Summary, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var summary Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	return &summary, nil
}
