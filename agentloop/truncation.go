package agentloop

import (
	"fmt"
	"strings"
)

// Default limits applied to command output before it is returned to the
// model. Narration always carries the full output.
const (
	DefaultOutputCharLimit = 30000
	DefaultOutputLineLimit = 256
)

// TruncateOutput keeps the head and tail of output within maxChars.
// A non-positive maxChars disables truncation.
func TruncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	removed := len(output) - maxChars
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Command output was truncated. %d characters were removed from the middle. "+
			"Re-run a narrower command if you need a specific part.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines applies line-based truncation using head/tail split.
// A non-positive maxLines disables truncation.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character truncation first, then line
// truncation.
func TruncateToolOutput(output string, maxChars, maxLines int) string {
	return TruncateLines(TruncateOutput(output, maxChars), maxLines)
}
