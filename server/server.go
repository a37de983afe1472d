// Package server wires webhook deliveries to the review pipeline.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/pullsage/pullsage/github"
	"github.com/pullsage/pullsage/review"
)

// maxPayloadBytes caps webhook bodies. GitHub delivers at most 25 MB.
const maxPayloadBytes = 25 << 20

// Runner executes the review pipeline for one delivery.
// Satisfied by *review.Reviewer.
type Runner interface {
	Run(ctx context.Context, input *review.Input) (*review.Result, error)
}

// Server holds the HTTP handlers for the webhook endpoint.
type Server struct {
	webhooks              *github.WebhookHandler
	reviewer              Runner
	defaultInstallationID int64
	logger                *slog.Logger
}

// New creates a Server. defaultInstallationID is used when the webhook
// payload carries no installation; zero means payloads must carry one.
func New(webhooks *github.WebhookHandler, reviewer Runner, defaultInstallationID int64, logger *slog.Logger) *Server {
	return &Server{
		webhooks:              webhooks,
		reviewer:              reviewer,
		defaultInstallationID: defaultInstallationID,
		logger:                logger,
	}
}

// Routes returns the ServeMux with all endpoints registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return mux
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// The raw body is needed for signature verification before any
	// parsing happens.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		s.logger.Error("failed to read webhook body", "error", err)
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := s.webhooks.VerifySignature(body, signature); err != nil {
		s.logger.Warn("rejected webhook", "error", err)
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	log := s.logger.With("event", eventType, "delivery", deliveryID)

	if eventType == "ping" {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	}
	if eventType != "pull_request" {
		log.Info("ignoring event")
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	event, err := s.webhooks.ParsePullRequestEvent(body)
	if err != nil {
		log.Error("malformed pull_request payload", "error", err)
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	if !s.webhooks.ShouldProcess(eventType, event) {
		log.Info("skipping action", "action", event.Action)
		jsonResponse(w, http.StatusOK, map[string]string{"status": "skipped"})
		return
	}

	installationID := s.defaultInstallationID
	if event.Installation != nil && event.Installation.ID != 0 {
		installationID = event.Installation.ID
	}
	if installationID == 0 {
		log.Error("no installation id in payload and no default configured")
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "no installation available"})
		return
	}

	input := &review.Input{
		InstallationID: installationID,
		Owner:          event.Repository.Owner.Login,
		Repo:           event.Repository.Name,
		PRNumber:       event.PullRequest.Number,
		PRTitle:        event.PullRequest.Title,
		HeadSHA:        event.PullRequest.Head.SHA,
	}

	result, err := s.reviewer.Run(r.Context(), input)
	if err != nil {
		log.Error("review run failed", "error", err)
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "review failed"})
		return
	}
	if result == nil {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "skipped", "reason": "disabled by repository config"})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"status":      "reviewed",
		"comment_url": result.CommentURL,
		"reviewed":    result.Reviewed,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{
		"service": "pullsage",
		"message": "AI code review for pull requests",
	})
}

func jsonResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
