package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pullsage/pullsage/config"
	"github.com/pullsage/pullsage/github"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency bounds how many file reviews run in parallel.
	// A limit of 1 reproduces fully sequential behavior.
	DefaultConcurrency = 4

	// DefaultCallTimeout bounds each GitHub API call (auth, fetch,
	// publish). Generation calls carry their own timeout.
	DefaultCallTimeout = 30 * time.Second
)

var (
	// ErrNoReviewableFiles indicates the pull request contains no file
	// with diff text to review. The run fails without publishing.
	ErrNoReviewableFiles = errors.New("no reviewable files in pull request")

	// ErrAllReviewsFailed indicates generation failed for every
	// reviewable file. The run fails without publishing.
	ErrAllReviewsFailed = errors.New("review generation failed for every file")
)

// TokenSource obtains installation tokens. Satisfied by *github.AppAuth.
type TokenSource interface {
	Token(ctx context.Context, installationID int64) (*github.InstallationToken, error)
}

// PullRequestAPI is the slice of the GitHub API the pipeline consumes.
// Satisfied by *github.Client.
type PullRequestAPI interface {
	ListChangedFiles(ctx context.Context, token *github.InstallationToken, owner, repo string, prNumber int) ([]github.ChangedFile, error)
	CreateIssueComment(ctx context.Context, token *github.InstallationToken, owner, repo string, prNumber int, body string) (*github.IssueComment, error)
}

// Generator produces review text for one file's diff.
// Satisfied by *ClaudeGenerator.
type Generator interface {
	Review(ctx context.Context, in *GenerateInput) (string, error)
}

// Options tunes the pipeline. Zero values mean defaults.
type Options struct {
	Concurrency int
	CallTimeout time.Duration
	BotName     string // used in the comment footer
}

// Reviewer orchestrates one webhook delivery: authenticate, fetch the
// changed files, generate a review per file, aggregate, publish.
// Each Run is independent; Reviewer holds no per-run state.
type Reviewer struct {
	auth         TokenSource
	gh           PullRequestAPI
	generator    Generator
	configLoader *config.Loader
	logger       *slog.Logger
	opts         Options
}

// NewReviewer creates a new Reviewer. configLoader may be nil, in which
// case every repository gets the default configuration.
func NewReviewer(auth TokenSource, gh PullRequestAPI, generator Generator, configLoader *config.Loader, logger *slog.Logger, opts Options) *Reviewer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.BotName == "" {
		opts.BotName = "pullsage"
	}

	return &Reviewer{
		auth:         auth,
		gh:           gh,
		generator:    generator,
		configLoader: configLoader,
		logger:       logger,
		opts:         opts,
	}
}

// Input identifies the pull request to review.
type Input struct {
	InstallationID int64
	Owner          string
	Repo           string
	PRNumber       int
	PRTitle        string
	HeadSHA        string
}

// FileOutcome is the per-file result of the generation step.
// Exactly one of Review, SkipReason, or Err is set.
type FileOutcome struct {
	Filename   string
	Review     string
	SkipReason string
	Err        error
}

// Result summarizes a completed run.
type Result struct {
	CommentID  int64
	CommentURL string
	Reviewed   int
	Failed     int
	Skipped    int
}

// Run executes the pipeline for one webhook delivery. It returns
// (nil, nil) when the repository configuration disables reviews.
func (r *Reviewer) Run(ctx context.Context, input *Input) (*Result, error) {
	log := r.logger.With("repo", input.Owner+"/"+input.Repo, "pr", input.PRNumber)
	log.Info("starting review", "installation_id", input.InstallationID, "title", input.PRTitle)

	token, err := r.authenticate(ctx, input.InstallationID)
	if err != nil {
		log.Error("stage failed", "stage", "auth", "error", err)
		return nil, err
	}

	cfg := r.loadConfig(ctx, token, input, log)
	if cfg == nil {
		// Parse errors are user errors that must surface, not be papered
		// over with defaults.
		return nil, fmt.Errorf("invalid repository config in %s/%s", input.Owner, input.Repo)
	}
	if !cfg.Enabled {
		log.Info("review disabled by repository config")
		return nil, nil
	}

	files, err := r.fetchFiles(ctx, token, input)
	if err != nil {
		log.Error("stage failed", "stage", "fetch", "error", err)
		return nil, err
	}
	log.Info("fetched changed files", "count", len(files))

	outcomes := r.generateAll(ctx, files, cfg, log)

	reviewed, failed, skipped := tally(outcomes)
	log.Info("generation complete", "reviewed", reviewed, "failed", failed, "skipped", skipped)

	if reviewed == 0 {
		if failed == 0 {
			return nil, ErrNoReviewableFiles
		}
		return nil, ErrAllReviewsFailed
	}

	body := buildCommentBody(outcomes, r.opts.BotName)

	comment, err := r.publish(ctx, token, input, body)
	if err != nil {
		log.Error("stage failed", "stage", "publish", "error", err)
		return nil, err
	}
	log.Info("posted review comment", "comment_id", comment.ID, "url", comment.HTMLURL)

	return &Result{
		CommentID:  comment.ID,
		CommentURL: comment.HTMLURL,
		Reviewed:   reviewed,
		Failed:     failed,
		Skipped:    skipped,
	}, nil
}

func (r *Reviewer) authenticate(ctx context.Context, installationID int64) (*github.InstallationToken, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return r.auth.Token(callCtx, installationID)
}

// loadConfig returns the repository config, the defaults when the file is
// absent or unreachable, or nil on a parse error.
func (r *Reviewer) loadConfig(ctx context.Context, token *github.InstallationToken, input *Input, log *slog.Logger) *config.Config {
	if r.configLoader == nil {
		return config.DefaultConfig()
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	cfg, err := r.configLoader.Load(callCtx, token, input.Owner, input.Repo, input.HeadSHA)
	if err != nil {
		var parseErr *config.ConfigParseError
		if errors.As(err, &parseErr) {
			log.Error("invalid config file", "path", parseErr.Path, "error", parseErr.Err)
			return nil
		}
		log.Warn("failed to load config, using defaults", "error", err)
		return config.DefaultConfig()
	}

	return cfg
}

func (r *Reviewer) fetchFiles(ctx context.Context, token *github.InstallationToken, input *Input) ([]github.ChangedFile, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return r.gh.ListChangedFiles(callCtx, token, input.Owner, input.Repo, input.PRNumber)
}

// generateAll runs the generation step for every file, concurrently up to
// the configured limit, and returns outcomes in original file order. One
// file's failure never aborts its siblings.
func (r *Reviewer) generateAll(ctx context.Context, files []github.ChangedFile, cfg *config.Config, log *slog.Logger) []FileOutcome {
	outcomes := make([]FileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))

	for i, file := range files {
		outcomes[i].Filename = file.Filename

		if cfg.ShouldExcludeFile(file.Filename) {
			outcomes[i].SkipReason = "excluded by config"
			log.Info("skipping file", "file", file.Filename, "reason", outcomes[i].SkipReason)
			continue
		}
		if strings.TrimSpace(file.Patch) == "" {
			// Binary or oversized files arrive without patch text.
			outcomes[i].SkipReason = "skipped: no diff"
			log.Info("skipping file", "file", file.Filename, "reason", outcomes[i].SkipReason)
			continue
		}

		i, file := i, file
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes[i].Err = &GenerationError{Filename: file.Filename, Err: err}
				return nil
			}
			defer sem.Release(1)

			text, err := r.generator.Review(gctx, &GenerateInput{
				Filename:        file.Filename,
				Diff:            file.Patch,
				Instructions:    cfg.Instructions,
				MaxOutputTokens: cfg.MaxOutputTokens,
			})
			if err != nil {
				log.Warn("file review failed", "file", file.Filename, "error", err)
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Review = text
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	return outcomes
}

func (r *Reviewer) publish(ctx context.Context, token *github.InstallationToken, input *Input, body string) (*github.IssueComment, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return r.gh.CreateIssueComment(callCtx, token, input.Owner, input.Repo, input.PRNumber, body)
}

func tally(outcomes []FileOutcome) (reviewed, failed, skipped int) {
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
		case o.SkipReason != "":
			skipped++
		default:
			reviewed++
		}
	}
	return reviewed, failed, skipped
}

// buildCommentBody aggregates per-file outcomes into one comment, in
// original file order. Failed files get a visible marker rather than
// being silently omitted; skipped files are left out entirely.
func buildCommentBody(outcomes []FileOutcome, botName string) string {
	var builder strings.Builder
	builder.WriteString("## AI Code Review\n")

	for _, o := range outcomes {
		if o.SkipReason != "" {
			continue
		}

		builder.WriteString("\n### ")
		builder.WriteString(o.Filename)
		builder.WriteString("\n\n")

		if o.Err != nil {
			builder.WriteString(fmt.Sprintf("_Review failed for this file (%s)._\n", failureReason(o.Err)))
			continue
		}

		builder.WriteString(strings.TrimSpace(o.Review))
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("\n---\n*Automated review by %s*\n", botName))
	return builder.String()
}

// failureReason gives a short, secret-free description for the comment.
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return "generation error"
}
