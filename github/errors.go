package github

import "fmt"

// AuthError indicates the installation token exchange failed, either
// because the signed assertion could not be built or because the token
// endpoint rejected the request.
type AuthError struct {
	InstallationID int64
	Status         int // HTTP status from the token endpoint, 0 if the call never completed
	Err            error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("installation auth failed for %d: status %d: %v", e.InstallationID, e.Status, e.Err)
	}
	return fmt.Sprintf("installation auth failed for %d: %v", e.InstallationID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError indicates listing the pull request's changed files failed.
// A mid-pagination failure returns a FetchError with no partial results.
type FetchError struct {
	Repo     string
	PRNumber int
	Page     int // page being fetched when the failure occurred
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch files for %s#%d (page %d): %v", e.Repo, e.PRNumber, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PublishError indicates posting the review comment failed.
type PublishError struct {
	Repo     string
	PRNumber int
	Status   int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish comment on %s#%d: %v", e.Repo, e.PRNumber, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
