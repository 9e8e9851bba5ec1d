package agentctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

func binding(terminal, agent string) models.TerminalBinding {
	return models.TerminalBinding{
		TerminalID:     terminal,
		AgentSessionID: agent,
		CreatedBy:      models.CreatedByAI,
	}
}

func TestBindAndResolve(t *testing.T) {
	s := New()
	s.Bind(binding("term-1", "conv-a"))

	id, ok := s.TerminalForAgent("conv-a")
	require.True(t, ok)
	assert.Equal(t, "term-1", id)

	b, ok := s.Binding("term-1")
	require.True(t, ok)
	assert.Equal(t, "conv-a", b.AgentSessionID)

	_, ok = s.TerminalForAgent("conv-unknown")
	assert.False(t, ok)
}

func TestBind_SecondTerminalReplacesDefault(t *testing.T) {
	s := New()
	s.Bind(binding("term-1", "conv-a"))
	s.Bind(binding("term-2", "conv-a"))

	id, ok := s.TerminalForAgent("conv-a")
	require.True(t, ok)
	assert.Equal(t, "term-2", id, "latest bind wins the implicit slot")

	_, ok = s.Binding("term-1")
	assert.False(t, ok, "displaced terminal no longer resolves")
	assert.Len(t, s.List(), 1)
}

func TestBind_SameTerminalIsIdempotent(t *testing.T) {
	s := New()
	s.Bind(binding("term-1", "conv-a"))
	s.Bind(binding("term-1", "conv-a"))

	id, _ := s.TerminalForAgent("conv-a")
	assert.Equal(t, "term-1", id)
	assert.Len(t, s.List(), 1)
}

func TestRemove_ClearsAgentMapping(t *testing.T) {
	s := New()
	s.Bind(binding("term-1", "conv-a"))

	s.Remove("term-1")

	_, ok := s.TerminalForAgent("conv-a")
	assert.False(t, ok)
	_, ok = s.Binding("term-1")
	assert.False(t, ok)

	s.Remove("term-1") // second remove is a no-op
}

func TestRemoveAgent(t *testing.T) {
	s := New()
	s.Bind(binding("term-1", "conv-a"))
	s.Bind(binding("term-2", "conv-b"))

	s.RemoveAgent("conv-a")

	_, ok := s.TerminalForAgent("conv-a")
	assert.False(t, ok)
	id, ok := s.TerminalForAgent("conv-b")
	require.True(t, ok)
	assert.Equal(t, "term-2", id, "other conversations are untouched")
}

func TestBindingsAreIndependentPerConversation(t *testing.T) {
	s := New()
	s.Bind(binding("term-1", "conv-a"))
	s.Bind(binding("term-2", "conv-b"))

	a, _ := s.TerminalForAgent("conv-a")
	b, _ := s.TerminalForAgent("conv-b")
	assert.Equal(t, "term-1", a)
	assert.Equal(t, "term-2", b)
	assert.Len(t, s.List(), 2)
}
