package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GitHubClient fetches repository metadata from the GitHub REST API. Only
// the upstream update timestamp is consumed; everything else on the
// response is ignored.
type GitHubClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGitHubClient creates a GitHub API client. The token is optional;
// without it requests count against the unauthenticated rate limit.
func NewGitHubClient(baseURL, token string) *GitHubClient {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHubClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type githubRepo struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// RepoUpdatedAt returns the repository's last update time as reported by
// GET /repos/{owner}/{repo}.
func (c *GitHubClient) RepoUpdatedAt(ctx context.Context, owner, repo string) (*time.Time, error) {
	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github fetch: status %d", resp.StatusCode)
	}

	var gr githubRepo
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("github decode: %w", err)
	}
	if gr.UpdatedAt.IsZero() {
		return nil, nil
	}
	return &gr.UpdatedAt, nil
}
