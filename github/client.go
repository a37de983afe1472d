package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	baseURL = "https://api.github.com"

	// filesPerPage is the page size for the pull request files listing.
	// 100 is the maximum GitHub allows.
	filesPerPage = 100
)

// Client provides methods to interact with the GitHub REST API.
// All calls authenticate with an explicit installation token obtained
// from AppAuth for the current pipeline run.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new GitHub API client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

func (c *Client) newRequest(ctx context.Context, method, url, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// ListChangedFiles fetches the list of files changed in a pull request,
// following pagination and preserving the order GitHub returns.
// A failure on any page returns a *FetchError with no partial results.
func (c *Client) ListChangedFiles(ctx context.Context, token *InstallationToken, owner, repo string, prNumber int) ([]ChangedFile, error) {
	repoFullName := owner + "/" + repo
	var files []ChangedFile

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			c.baseURL, owner, repo, prNumber, filesPerPage, page)

		pageFiles, err := c.fetchFilesPage(ctx, token, url)
		if err != nil {
			var fetchErr *FetchError
			if fe, ok := err.(*FetchError); ok {
				fetchErr = fe
			} else {
				fetchErr = &FetchError{Err: err}
			}
			fetchErr.Repo = repoFullName
			fetchErr.PRNumber = prNumber
			fetchErr.Page = page
			return nil, fetchErr
		}

		files = append(files, pageFiles...)
		if len(pageFiles) < filesPerPage {
			return files, nil
		}
	}
}

func (c *Client) fetchFilesPage(ctx context.Context, token *InstallationToken, url string) ([]ChangedFile, error) {
	req, err := c.newRequest(ctx, "GET", url, token.Token, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &FetchError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)),
		}
	}

	var files []ChangedFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}

	return files, nil
}

// CreateIssueComment posts a comment on a PR (via the issues API).
// Each call creates a new comment; prior comments are never edited.
func (c *Client) CreateIssueComment(ctx context.Context, token *InstallationToken, owner, repo string, prNumber int, body string) (*IssueComment, error) {
	repoFullName := owner + "/" + repo
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.baseURL, owner, repo, prNumber)

	reqBody, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, &PublishError{Repo: repoFullName, PRNumber: prNumber, Err: fmt.Errorf("failed to marshal comment: %w", err)}
	}

	req, err := c.newRequest(ctx, "POST", url, token.Token, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &PublishError{Repo: repoFullName, PRNumber: prNumber, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &PublishError{Repo: repoFullName, PRNumber: prNumber, Err: fmt.Errorf("failed to create comment: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &PublishError{
			Repo:     repoFullName,
			PRNumber: prNumber,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody)),
		}
	}

	var comment IssueComment
	if err := json.NewDecoder(resp.Body).Decode(&comment); err != nil {
		return nil, &PublishError{Repo: repoFullName, PRNumber: prNumber, Err: fmt.Errorf("failed to decode comment response: %w", err)}
	}

	return &comment, nil
}

// FetchFileContent fetches the content of a file from a repository.
// Returns "" with no error if the file does not exist.
func (c *Client) FetchFileContent(ctx context.Context, token *InstallationToken, owner, repo, path, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, path, ref)
	req, err := c.newRequest(ctx, "GET", url, token.Token, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil // File doesn't exist
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to fetch file: status %d, body: %s", resp.StatusCode, string(body))
	}

	var content FileContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}

	if content.Encoding != "base64" {
		return "", fmt.Errorf("unsupported encoding: %s", content.Encoding)
	}

	// The contents API wraps base64 at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}

	return string(decoded), nil
}
