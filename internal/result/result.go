// Package result defines the data model shared across the aggregation
// pipeline: raw crawled items, relevance-scored items, and the final report.
package result

import "time"

// RawResult is one crawled search-result item before relevance scoring.
// Title and URL are always non-empty by the time a result reaches the
// filter; content may be empty and date defaults to crawl time.
type RawResult struct {
	Title    string         `json:"title"`
	URL      string         `json:"url"`
	Content  string         `json:"content"`
	Platform string         `json:"platform"`
	Query    string         `json:"query"`
	Date     time.Time      `json:"date"`
	Extras   map[string]any `json:"extras,omitempty"`
}

// ScoredResult is a RawResult annotated by the relevance filter. Score is
// an integer in [0,10]; Reason is a short judge-provided explanation.
// Instances are created only inside the filter and are immutable afterward.
type ScoredResult struct {
	RawResult
	RelevanceScore  int    `json:"relevance_score"`
	RelevanceReason string `json:"relevance_reason"`
}

// FilteredByPlatform maps a platform name to its ordered scored results.
// Slice order preserves the original crawl order within each platform.
type FilteredByPlatform map[string][]ScoredResult

// TotalResults sums scored-result counts across all platforms.
func (f FilteredByPlatform) TotalResults() int {
	total := 0
	for _, items := range f {
		total += len(items)
	}
	return total
}

// ResultPreview is a compact view of one scored result used in the
// report's top-results digest.
type ResultPreview struct {
	Title  string `json:"title"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Report is the final artifact of one pipeline run. TotalResults always
// equals the sum of per-platform counts in ResultsByPlatform. TopResults
// is present only when the summarization call succeeded.
type Report struct {
	Summary           string                     `json:"summary"`
	TotalResults      int                        `json:"total_results"`
	ResultsByPlatform FilteredByPlatform         `json:"results_by_platform"`
	TopResults        map[string][]ResultPreview `json:"top_results,omitempty"`
}
