package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestOptionalInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		want     int
		wantWarn bool
	}{
		{"unset uses fallback", "", 4, false},
		{"valid value", "8", 8, false},
		{"malformed value warns and uses fallback", "eight", 4, true},
		{"trailing garbage warns and uses fallback", "8x", 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REVIEW_CONCURRENCY", tt.value)

			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, nil))

			if got := optionalInt(logger, "REVIEW_CONCURRENCY", 4); got != tt.want {
				t.Errorf("optionalInt() = %d, want %d", got, tt.want)
			}
			if warned := strings.Contains(logs.String(), "malformed env value"); warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v; logs: %s", warned, tt.wantWarn, logs.String())
			}
		})
	}
}

func TestRequiredInt64(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		t.Setenv("GITHUB_APP_ID", "")
		if _, err := requiredInt64("GITHUB_APP_ID"); err == nil {
			t.Error("requiredInt64() = nil error, want error when unset")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		t.Setenv("GITHUB_APP_ID", "not-a-number")
		if _, err := requiredInt64("GITHUB_APP_ID"); err == nil {
			t.Error("requiredInt64() = nil error, want error for malformed value")
		}
	})

	t.Run("valid", func(t *testing.T) {
		t.Setenv("GITHUB_APP_ID", "12345")
		got, err := requiredInt64("GITHUB_APP_ID")
		if err != nil {
			t.Fatalf("requiredInt64() error = %v", err)
		}
		if got != 12345 {
			t.Errorf("requiredInt64() = %d, want 12345", got)
		}
	})
}
