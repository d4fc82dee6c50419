// Package journal appends run narratives to a log file kept in a GitHub repo
package journal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EndMarker closes every appended entry
const EndMarker = "____________________\n"

type Appender interface {
	Append(ctx context.Context, path, message, text string) error
}

var _ Appender = (*GitHubAppender)(nil)

type GitHubAppender struct {
	apiURL     string
	repo       string
	token      string
	branch     string
	httpClient *http.Client
}

func NewGitHubAppender(httpClient *http.Client, apiURL, repo, token, branch string) *GitHubAppender {
	return &GitHubAppender{
		apiURL:     strings.TrimRight(apiURL, "/"),
		repo:       repo,
		token:      token,
		branch:     branch,
		httpClient: httpClient,
	}
}

type contentsResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

type contentsUpdate struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// Append reads the current file, adds text and the end marker, and commits
// it back. A missing file is created.
func (g *GitHubAppender) Append(ctx context.Context, path, message, text string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", g.apiURL, g.repo, strings.TrimLeft(path, "/"))

	current, sha, err := g.read(ctx, endpoint)
	if err != nil {
		return err
	}

	updated := current + "\n" + text + EndMarker
	body, err := json.Marshal(contentsUpdate{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(updated)),
		SHA:     sha,
		Branch:  g.branch,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GitHub API error %d updating %s: %s", resp.StatusCode, path, string(msg))
	}
	return nil
}

func (g *GitHubAppender) read(ctx context.Context, endpoint string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("creating read request: %w", err)
	}
	if g.branch != "" {
		q := req.URL.Query()
		q.Set("ref", g.branch)
		req.URL.RawQuery = q.Encode()
	}
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("reading log file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", "", nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", "", fmt.Errorf("GitHub API error %d reading log file: %s", resp.StatusCode, string(msg))
	}

	var out contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("parsing contents response: %w", err)
	}
	// the API wraps base64 content at 60 columns
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return "", "", fmt.Errorf("decoding log file content: %w", err)
	}
	return string(raw), out.SHA, nil
}

func (g *GitHubAppender) authorize(req *http.Request) {
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
