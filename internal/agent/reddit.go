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

const redditBaseURL = "https://www.reddit.com"

// RedditCrawler searches reddit through the public search.json listing.
// No credentials are needed, only a descriptive User-Agent.
type RedditCrawler struct {
	baseURL    string
	maxResults int
	userAgent  string
	client     *http.Client
}

func NewRedditCrawler(cfg config.SearchConfig) *RedditCrawler {
	return &RedditCrawler{
		baseURL:    redditBaseURL,
		maxResults: cfg.MaxResultsPerPlatform,
		userAgent:  cfg.UserAgent,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *RedditCrawler) Platform() string { return "reddit" }

func (c *RedditCrawler) Crawl(ctx context.Context, keywords []string, detail string) ([]result.RawResult, error) {
	query := strings.Join(keywords, " ")

	limit := c.maxResults
	if limit > 100 {
		limit = 100 // listing endpoint cap
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit search status %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode reddit listing: %w", err)
	}

	results := make([]result.RawResult, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		link := post.URL
		if post.Permalink != "" {
			link = c.baseURL + post.Permalink
		}
		results = append(results, result.RawResult{
			Title:    post.Title,
			URL:      link,
			Content:  post.Selftext,
			Platform: "reddit",
			Query:    query,
			Date:     time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Extras: map[string]any{
				"subreddit":    post.Subreddit,
				"num_comments": post.NumComments,
				"score":        post.Score,
			},
		})
	}
	return results, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Subreddit   string  `json:"subreddit"`
	NumComments int     `json:"num_comments"`
	Score       int     `json:"score"`
	CreatedUTC  float64 `json:"created_utc"`
}
