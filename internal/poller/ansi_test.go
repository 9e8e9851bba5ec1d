package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"color codes", "\x1b[31mred\x1b[0m text", "red text"},
		{"cursor movement", "\x1b[2J\x1b[Hcleared", "cleared"},
		{"private mode csi", "\x1b[?25lhidden cursor\x1b[?25h", "hidden cursor"},
		{"osc title sequence", "\x1b]0;my-title\x07prompt$ ", "prompt$ "},
		{"bare esc control", "\x1bDscrolled", "scrolled"},
		{"mixed", "\x1b[1;32muser@host\x1b[0m:\x1b[34m~/src\x1b[0m$ ls", "user@host:~/src$ ls"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripANSI(tt.in))
		})
	}
}
