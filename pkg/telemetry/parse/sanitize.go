// Package parse implements the ordered parser-fallback chain applied to raw
// CLI output: sanitize, then the collection's parsers (TextFSM, TTP, regex)
// in declared order, first non-empty row list wins, then normalize and schema
// coercion.
package parse

import (
	"strings"

	"github.com/scottpeterman/wirlwind/pkg/telemetry/trace"
)

// Sanitize strips the leading command echo and the trailing prompt line from
// raw CLI output. Intervening lines are preserved verbatim.
//
// Interactive SSH sessions include the command echo on the first line(s) and
// the device prompt on the last. Shipped TextFSM templates carry strict
// "^. -> Error" rules that reject such lines, turning them into silent parse
// failures, so they must come off before the chain runs.
func Sanitize(raw, command, prompt string, tr *trace.Trace) string {
	if raw == "" {
		return raw
	}

	lines := strings.Split(raw, "\n")
	stripped := 0

	// Command echo: check the first non-empty line among the first three
	// for the echoed command. The echo may arrive with a prompt prefix, so
	// substring match.
	if cmd := strings.TrimSpace(command); cmd != "" {
		limit := 3
		if len(lines) < limit {
			limit = len(lines)
		}
		for i := 0; i < limit; i++ {
			line := strings.TrimSpace(lines[i])
			if line == "" {
				continue
			}
			if line == cmd || strings.HasSuffix(line, cmd) || strings.Contains(line, cmd) {
				stripped += i + 1
				lines = lines[i+1:]
			}
			break
		}
	}

	// Trailing blank lines.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
		stripped++
	}

	// Trailing prompt: either the known session prompt, or a short line
	// ending in a prompt character. Never strips lines that look like data.
	if len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last != "" && (last == strings.TrimSpace(prompt) || looksLikePrompt(last)) {
			lines = lines[:len(lines)-1]
			stripped++
		}
	}

	result := strings.Join(lines, "\n")
	if tr != nil && stripped > 0 {
		tr.Sanitized(result, stripped)
	}
	return result
}

func looksLikePrompt(line string) bool {
	if len(line) >= 60 {
		return false
	}
	if line[0] >= '0' && line[0] <= '9' {
		return false
	}
	switch line[len(line)-1] {
	case '#', '>', '$', '%', ')':
		return true
	}
	return false
}
