package models

import "time"

// OutputType distinguishes the stream a chunk came from.
type OutputType string

const (
	OutputStdout OutputType = "stdout"
	OutputStderr OutputType = "stderr"
	OutputSystem OutputType = "system"
)

// Chunk is one raw unit of output returned by a transport read, before any
// cleaning. Timestamp is the backend's milliseconds-since-epoch clock.
type Chunk struct {
	Type      OutputType `json:"type"`
	Content   string     `json:"content"`
	Timestamp int64      `json:"timestamp"`
}

// OutputLine is one decoded unit of output attributed to a session.
// Lines are never mutated after they are appended to a buffer, and lines
// from the same session are never reordered relative to each other.
type OutputLine struct {
	SessionID string     `json:"sessionId"`
	Type      OutputType `json:"type"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}
