package review

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("internal/api/server.go", "@@ -1,3 +1,4 @@\n+import \"fmt\"")

	if !strings.Contains(prompt, "internal/api/server.go") {
		t.Error("prompt does not name the file")
	}
	if !strings.Contains(prompt, "<diff>") || !strings.Contains(prompt, "</diff>") {
		t.Error("prompt does not wrap the diff")
	}
	if !strings.Contains(prompt, `+import "fmt"`) {
		t.Error("prompt does not contain the diff body")
	}
}

func TestGetSystemPrompt(t *testing.T) {
	base := GetSystemPrompt("")
	if !strings.Contains(base, "code reviewer") {
		t.Error("system prompt missing reviewer role")
	}
	if strings.Contains(base, "Repository-Specific Instructions") {
		t.Error("base prompt should not carry the instructions section")
	}

	custom := GetSystemPrompt("Focus on security. Be terse.")
	if !strings.HasPrefix(custom, base) {
		t.Error("custom prompt should extend the base prompt")
	}
	if !strings.Contains(custom, "Focus on security. Be terse.") {
		t.Error("custom prompt missing the instructions")
	}
}

func TestTruncateDiff(t *testing.T) {
	t.Run("short diff unchanged", func(t *testing.T) {
		diff := "@@ -1 +1 @@\n-a\n+b\n"
		got, truncated := TruncateDiff(diff, 1024)
		if truncated {
			t.Error("truncated = true, want false")
		}
		if got != diff {
			t.Errorf("diff changed: %q", got)
		}
	})

	t.Run("zero limit disables truncation", func(t *testing.T) {
		diff := strings.Repeat("x", 100)
		if _, truncated := TruncateDiff(diff, 0); truncated {
			t.Error("truncated = true, want false with no limit")
		}
	})

	t.Run("long diff cut at line boundary", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i < 100; i++ {
			sb.WriteString("+line of diff content here\n")
		}
		diff := sb.String()

		limit := 120
		got, truncated := TruncateDiff(diff, limit)
		if !truncated {
			t.Fatal("truncated = false, want true")
		}
		if !strings.Contains(got, "[diff truncated") {
			t.Error("missing truncation marker")
		}

		kept := got[:strings.Index(got, "\n\n[diff truncated")]
		if len(kept) > limit {
			t.Errorf("kept %d bytes, limit %d", len(kept), limit)
		}
		for _, line := range strings.Split(kept, "\n") {
			if line != "+line of diff content here" {
				t.Errorf("partial line survived truncation: %q", line)
			}
		}
	})
}
