package sshserver

import (
	"io"
	"strings"
)

// screen owns the alternate screen on the raw session writer and draws
// frames through the line editor so the prompt is restored after each one.
type screen struct {
	raw   io.Writer
	frame io.Writer
}

func newScreen(raw, frame io.Writer) *screen {
	return &screen{raw: raw, frame: frame}
}

func (s *screen) EnterAltScreen() {
	_, _ = io.WriteString(s.raw, "\x1b[?1049h\x1b[H\x1b[2J")
}

func (s *screen) ExitAltScreen() {
	_, _ = io.WriteString(s.raw, "\x1b[?1049l\x1b[?25h")
}

func (s *screen) Render(lines []string) error {
	var b strings.Builder
	b.WriteString("\x1b[H\x1b[2J")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	_, err := io.WriteString(s.frame, b.String())
	return err
}
