package poller

import "regexp"

// ansiPattern matches CSI escape sequences plus the stray ESC forms pseudo
// terminals emit for titles and cursor control.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*\x07|\x1b[@-_]`)

// StripANSI removes terminal control sequences, leaving plain text for
// views that render outside a real terminal emulator.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
