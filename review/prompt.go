// Package review provides the pull request review pipeline: per-file
// review generation using Claude and orchestration of one webhook
// delivery from authentication through comment publishing.
package review

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert code reviewer. You are given the unified diff of a single file from a pull request and must provide actionable, helpful feedback on it.

Focus on:
- Bugs and logic errors
- Security vulnerabilities
- Performance issues
- Significant code clarity problems (only if code is genuinely confusing)

Do NOT comment on:
- Minor style preferences (indentation, spacing, etc.)
- Formatting issues (assume automated formatters handle this)
- Trivial issues that don't affect functionality

Respond in plain markdown. Be concise and specific: a short list of findings, each naming the relevant lines from the diff. If the change looks good, say so in one sentence.`

const reviewPromptTemplate = `Review the following diff for the file %s.

Only the lines in this diff changed; do not speculate about code outside it.

<diff>
%s
</diff>`

// truncationMarker is appended to a diff that was cut at the configured
// byte threshold so the model (and anyone reading logs) can see the diff
// is incomplete.
const truncationMarker = "\n\n[diff truncated: review covers only the first %d bytes]"

// BuildPrompt constructs the per-file review prompt.
func BuildPrompt(filename, diff string) string {
	return fmt.Sprintf(reviewPromptTemplate, filename, diff)
}

// GetSystemPrompt returns the system prompt, optionally extended with
// repository-specific instructions (tone, strictness, focus areas).
func GetSystemPrompt(instructions string) string {
	result := systemPrompt

	if instructions != "" {
		result += "\n\n## Repository-Specific Instructions\n\n" + instructions
	}

	return result
}

// TruncateDiff cuts a diff down to maxBytes and appends a visible marker.
// The cut lands on the last full line within the limit so the model never
// sees a half line. Returns the (possibly unchanged) diff and whether it
// was truncated.
func TruncateDiff(diff string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(diff) <= maxBytes {
		return diff, false
	}

	cut := diff[:maxBytes]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}

	return cut + fmt.Sprintf(truncationMarker, maxBytes), true
}
