package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/result"
)

const githubBaseURL = "https://api.github.com"

// GitHubCrawler searches repositories through the public search API.
// Unauthenticated requests are rate limited but sufficient for a
// single search batch.
type GitHubCrawler struct {
	baseURL    string
	maxResults int
	userAgent  string
	client     *http.Client
}

func NewGitHubCrawler(cfg config.SearchConfig) *GitHubCrawler {
	return &GitHubCrawler{
		baseURL:    githubBaseURL,
		maxResults: cfg.MaxResultsPerPlatform,
		userAgent:  cfg.UserAgent,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *GitHubCrawler) Platform() string { return "github" }

func (c *GitHubCrawler) Crawl(ctx context.Context, keywords []string, detail string) ([]result.RawResult, error) {
	query := strings.Join(keywords, " ")

	perPage := c.maxResults
	if perPage > 100 {
		perPage = 100 // search API page cap
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/repositories?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github search status %d", resp.StatusCode)
	}

	var payload githubSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}

	results := make([]result.RawResult, 0, len(payload.Items))
	for _, repo := range payload.Items {
		results = append(results, result.RawResult{
			Title:    repo.FullName,
			URL:      repo.HTMLURL,
			Content:  repo.Description,
			Platform: "github",
			Query:    query,
			Date:     repo.UpdatedAt,
			Extras: map[string]any{
				"stars":    repo.Stars,
				"language": repo.Language,
				"forks":    repo.Forks,
			},
		})
	}
	return results, nil
}

type githubSearchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []githubRepo `json:"items"`
}

type githubRepo struct {
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	UpdatedAt   time.Time `json:"updated_at"`
}
