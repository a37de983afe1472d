package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test-webhook-secret"
	payload := []byte(`{"action":"opened"}`)
	h := NewWebhookHandler(secret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		wantErr   error
	}{
		{
			name:      "valid signature",
			payload:   payload,
			signature: signPayload(secret, payload),
			wantErr:   nil,
		},
		{
			name:      "missing signature",
			payload:   payload,
			signature: "",
			wantErr:   ErrMissingSignature,
		},
		{
			name:      "wrong secret",
			payload:   payload,
			signature: signPayload("other-secret", payload),
			wantErr:   ErrInvalidSignature,
		},
		{
			name:      "tampered payload",
			payload:   []byte(`{"action":"closed"}`),
			signature: signPayload(secret, payload),
			wantErr:   ErrInvalidSignature,
		},
		{
			name:      "wrong scheme",
			payload:   payload,
			signature: "sha1=deadbeef",
			wantErr:   ErrInvalidSignature,
		},
		{
			name:      "malformed header",
			payload:   payload,
			signature: "not-a-signature",
			wantErr:   ErrInvalidSignature,
		},
		{
			name:      "non-hex digest",
			payload:   payload,
			signature: "sha256=zzzz",
			wantErr:   ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.VerifySignature(tt.payload, tt.signature)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifySignature() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestVerifySignatureGolden pins the documented GitHub example so a broken
// HMAC implementation cannot pass by being self-consistent.
func TestVerifySignatureGolden(t *testing.T) {
	h := NewWebhookHandler("It's a Secret to Everybody")
	payload := []byte("Hello, World!")
	signature := "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"

	if err := h.VerifySignature(payload, signature); err != nil {
		t.Errorf("VerifySignature() = %v, want nil", err)
	}
}

func TestShouldProcess(t *testing.T) {
	h := NewWebhookHandler("secret")

	eventWith := func(action string) *WebhookEvent {
		return &WebhookEvent{Action: action}
	}

	tests := []struct {
		name      string
		eventType string
		event     *WebhookEvent
		want      bool
	}{
		{"opened pull request", "pull_request", eventWith("opened"), true},
		{"synchronize pull request", "pull_request", eventWith("synchronize"), true},
		{"closed pull request", "pull_request", eventWith("closed"), false},
		{"reopened pull request", "pull_request", eventWith("reopened"), false},
		{"edited pull request", "pull_request", eventWith("edited"), false},
		{"issue comment", "issue_comment", eventWith("created"), false},
		{"push event", "push", eventWith(""), false},
		{"nil event", "pull_request", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.ShouldProcess(tt.eventType, tt.event); got != tt.want {
				t.Errorf("ShouldProcess(%q, %v) = %v, want %v", tt.eventType, tt.event, got, tt.want)
			}
		})
	}
}

func TestParsePullRequestEvent(t *testing.T) {
	h := NewWebhookHandler("secret")

	valid := []byte(`{
		"action": "opened",
		"pull_request": {
			"number": 42,
			"title": "Add feature",
			"head": {"ref": "feature", "sha": "abc123"},
			"base": {"ref": "main", "sha": "def456"}
		},
		"repository": {
			"name": "widgets",
			"full_name": "acme/widgets",
			"owner": {"login": "acme"}
		},
		"installation": {"id": 99}
	}`)

	event, err := h.ParsePullRequestEvent(valid)
	if err != nil {
		t.Fatalf("ParsePullRequestEvent() error = %v", err)
	}
	if event.Action != "opened" {
		t.Errorf("Action = %q, want %q", event.Action, "opened")
	}
	if event.PullRequest.Number != 42 {
		t.Errorf("PullRequest.Number = %d, want 42", event.PullRequest.Number)
	}
	if event.PullRequest.Head.SHA != "abc123" {
		t.Errorf("Head.SHA = %q, want %q", event.PullRequest.Head.SHA, "abc123")
	}
	if event.Repository.Owner.Login != "acme" {
		t.Errorf("Owner.Login = %q, want %q", event.Repository.Owner.Login, "acme")
	}
	if event.Installation == nil || event.Installation.ID != 99 {
		t.Errorf("Installation = %+v, want ID 99", event.Installation)
	}

	invalid := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte(`{{{`)},
		{"missing pull_request", []byte(`{"action":"opened","repository":{"name":"r","owner":{"login":"o"}}}`)},
		{"missing head ref", []byte(`{"action":"opened","pull_request":{"number":1,"base":{"sha":"d"}},"repository":{"name":"r","owner":{"login":"o"}}}`)},
		{"missing base ref", []byte(`{"action":"opened","pull_request":{"number":1,"head":{"sha":"a"}},"repository":{"name":"r","owner":{"login":"o"}}}`)},
		{"missing repository", []byte(`{"action":"opened","pull_request":{"number":1,"head":{"sha":"a"},"base":{"sha":"d"}}}`)},
		{"missing owner", []byte(`{"action":"opened","pull_request":{"number":1,"head":{"sha":"a"},"base":{"sha":"d"}},"repository":{"name":"r"}}`)},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.ParsePullRequestEvent(tt.payload); err == nil {
				t.Error("ParsePullRequestEvent() = nil error, want error")
			}
		})
	}
}
