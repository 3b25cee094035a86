package agent

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/result"
)

// anchorScript pulls every anchor off the rendered page. Result pages are
// rendered in a real browser first, so links injected by scripts are seen.
const anchorScript = `Array.from(document.querySelectorAll("a[href]")).map(a => ({href: a.href, text: (a.innerText || "").trim()}))`

const (
	// minLinkText filters navigation chrome out of the anchor dump. Real
	// result links carry a headline, nav links carry a word or two.
	minLinkText = 15

	// enrichLimit bounds how many result pages get a full readability
	// pass. Each pass is another headless render.
	enrichLimit = 3

	maxContentChars = 4000
)

// WebCrawler searches any site that exposes a search results URL. The
// page is rendered headless, anchors are collected as candidate results,
// and the top few are enriched with extracted article text.
type WebCrawler struct {
	platform   string
	searchURL  string // template containing the literal {query} placeholder
	maxResults int
	timeout    time.Duration
	userAgent  string
	logger     *log.Logger
}

func NewWebCrawler(platform, searchURL string, cfg config.SearchConfig) *WebCrawler {
	return &WebCrawler{
		platform:   strings.ToLower(strings.TrimSpace(platform)),
		searchURL:  searchURL,
		maxResults: cfg.MaxResultsPerPlatform,
		timeout:    cfg.RequestTimeout,
		userAgent:  cfg.UserAgent,
		logger:     log.New(log.Writer(), "[WEB] ", log.LstdFlags),
	}
}

func (c *WebCrawler) Platform() string { return c.platform }

func (c *WebCrawler) Crawl(ctx context.Context, keywords []string, detail string) ([]result.RawResult, error) {
	query := strings.Join(keywords, " ")
	target := strings.ReplaceAll(c.searchURL, "{query}", url.QueryEscape(query))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	links, err := c.collectAnchors(ctx, target)
	if err != nil {
		return nil, err
	}
	links = selectLinks(links, c.maxResults)

	now := time.Now().UTC()
	results := make([]result.RawResult, 0, len(links))
	for i, link := range links {
		r := result.RawResult{
			Title:    link.Text,
			URL:      link.Href,
			Platform: c.platform,
			Query:    query,
			Date:     now,
		}
		if i < enrichLimit {
			r.Content = c.readArticle(ctx, link.Href)
		}
		results = append(results, r)
	}
	return results, nil
}

type pageLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// selectLinks keeps plausible result links in document order: absolute
// http(s), headline-length text, first occurrence of each URL.
func selectLinks(links []pageLink, limit int) []pageLink {
	seen := make(map[string]struct{}, len(links))
	out := make([]pageLink, 0, limit)
	for _, link := range links {
		if len(out) >= limit {
			break
		}
		if len(link.Text) < minLinkText {
			continue
		}
		u, err := url.Parse(link.Href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if _, ok := seen[link.Href]; ok {
			continue
		}
		seen[link.Href] = struct{}{}
		out = append(out, link)
	}
	return out
}

func (c *WebCrawler) collectAnchors(ctx context.Context, target string) ([]pageLink, error) {
	bctx, cancel := c.browserContext(ctx)
	defer cancel()

	var links []pageLink
	err := chromedp.Run(bctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(anchorScript, &links),
	)
	return links, err
}

// readArticle renders a single result page and extracts its readable
// text. Extraction failures degrade to an empty content field.
func (c *WebCrawler) readArticle(ctx context.Context, pageURL string) string {
	bctx, cancel := c.browserContext(ctx)
	defer cancel()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		c.logger.Printf("render failed for %s: %v", pageURL, err)
		return ""
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxContentChars {
		text = text[:maxContentChars]
	}
	return text
}

func (c *WebCrawler) browserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(c.userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	bctx, cancelBrowser := chromedp.NewContext(actx)
	return bctx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}
