package command

import (
	"strings"
)

// Command is a parsed slash command. Args honor double quotes so titles and
// context values may contain spaces; Remainder is the raw text after the name.
type Command struct {
	Name      string
	Args      []string
	Raw       string
	Remainder string
}

// Parse parses a line and returns a Command if it starts with "/".
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	raw := strings.TrimSpace(trimmed[1:])
	fields := splitArgs(raw)
	if len(fields) == 0 {
		return Command{Raw: raw}, true
	}
	return Command{
		Name:      strings.ToLower(fields[0]),
		Args:      fields[1:],
		Raw:       raw,
		Remainder: unquote(remainderAfterTokens(raw, 1)),
	}, true
}

// splitArgs splits on whitespace, keeping double-quoted runs together.
// An unterminated quote runs to the end of the line.
func splitArgs(raw string) []string {
	var (
		out     []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '"':
			quoted = !quoted
			started = true
		case isSpace(c) && !quoted:
			if started {
				out = append(out, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteByte(c)
			started = true
		}
	}
	if started {
		out = append(out, current.String())
	}
	return out
}

func remainderAfterTokens(raw string, count int) string {
	i := 0
	for remaining := count; remaining > 0 && i < len(raw); remaining-- {
		for i < len(raw) && isSpace(raw[i]) {
			i++
		}
		quoted := false
		for i < len(raw) && (quoted || !isSpace(raw[i])) {
			if raw[i] == '"' {
				quoted = !quoted
			}
			i++
		}
	}
	if i >= len(raw) {
		return ""
	}
	return strings.TrimSpace(raw[i:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
