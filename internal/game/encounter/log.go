package encounter

import "fmt"

// eventLog is the append-only combat log. Every line is retained; only the
// most recent window is surfaced.
type eventLog struct {
	lines []string
}

func (l *eventLog) appendf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// window returns a copy of the last n lines, oldest first.
func (l *eventLog) window(n int) []string {
	start := len(l.lines) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(l.lines)-start)
	copy(out, l.lines[start:])
	return out
}

// Log returns a copy of every event line recorded so far.
func (e *Encounter) Log() []string { return e.log.window(len(e.log.lines)) }
