// Package pipeline implements the aggregation flow: dispatch crawls per
// platform, judge-score the raw results, keep the relevant ones, and
// produce a summarized report. Every stage degrades instead of failing;
// a run always ends with a report.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/helpers"
	"github.com/mohammad-safakhou/scout/internal/judge"
	"github.com/mohammad-safakhou/scout/internal/result"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

// Fail-open markers attached to results when judging breaks. Callers can
// key off the reason text to tell degraded output from scored output.
const (
	ReasonParseError      = "Filtering failed - JSON parse error"
	ReasonUnexpectedError = "Filtering failed - unexpected error"
)

const (
	maxTitleChars   = 200
	maxContentChars = 1500
)

const filterPromptTemplate = `You are filtering search results based on user preferences.

User's keywords: %s
User's detail/preferences: "%s"

Analyze these %d search results and score each from 0-10 based on relevance to the user's keywords and preferences.

Results:
%s

IMPORTANT:
- Score 8-10: Highly relevant to keywords AND matches user preferences
- Score 5-7: Relevant to keywords but doesn't fully match preferences
- Score 0-4: Not relevant or doesn't match preferences
- If detail is empty, focus only on keyword relevance

Return ONLY a JSON array of objects with format:
[
  {"index": 0, "score": 8, "reason": "brief reason"},
  {"index": 1, "score": 3, "reason": "brief reason"},
  ...
]

Return ONLY valid JSON, no other text.`

// Filter scores raw results against the user's keywords and detail with
// one judge call per platform batch, keeping results at or above the
// relevance threshold. Without a judge it passes everything through
// unscored, and any judge failure fails open: nothing is silently lost.
type Filter struct {
	judge      judge.Judge
	threshold  int
	batchLimit int
	logger     *log.Logger
	telemetry  *telemetry.Telemetry
}

func NewFilter(j judge.Judge, cfg config.SearchConfig, tel *telemetry.Telemetry) *Filter {
	return &Filter{
		judge:      j,
		threshold:  cfg.FilterThreshold,
		batchLimit: cfg.FilterBatchLimit,
		logger:     log.New(log.Writer(), "[FILTER] ", log.LstdFlags),
		telemetry:  tel,
	}
}

// Degraded reports whether the filter runs without a judge and therefore
// passes results through unscored. Decided once at construction.
func (f *Filter) Degraded() bool { return f.judge == nil }

// batchEntry is what the judge sees for one raw result. Index refers back
// into the raw slice; title and content are truncated to keep the prompt
// within budget.
type batchEntry struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// scoreEntry is one element of the judge's verdict array. Score is decoded
// as a float because models occasionally emit 8.0 or 7.5 despite the
// integer contract.
type scoreEntry struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Filter judges one platform's raw results. The returned slice contains
// only results scoring at or above the threshold, in their original crawl
// order. Degraded modes return every input:
//
//	no judge configured   score 0, empty reason
//	judge call failed     score 0, ReasonUnexpectedError
//	verdict unparseable   score 0, ReasonParseError
func (f *Filter) Filter(ctx context.Context, results []result.RawResult, detail string, keywords []string, platform string) []result.ScoredResult {
	if f.judge == nil || len(results) == 0 {
		return passThrough(results, "")
	}

	f.logger.Printf("filtering %d results from %s", len(results), platform)

	batch := make([]batchEntry, 0, f.batchLimit)
	for i, r := range results {
		if i >= f.batchLimit {
			break
		}
		batch = append(batch, batchEntry{
			Index:   i,
			Title:   truncate(r.Title, maxTitleChars),
			URL:     r.URL,
			Content: truncate(r.Content, maxContentChars),
		})
	}

	encoded, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		f.logger.Printf("encoding batch for %s failed: %v", platform, err)
		return passThrough(results, ReasonUnexpectedError)
	}
	prompt := fmt.Sprintf(filterPromptTemplate, strings.Join(keywords, ", "), detail, len(batch), encoded)

	resp, err := f.judge.Invoke(ctx, prompt)
	if err != nil {
		f.logger.Printf("judge call failed for %s: %v", platform, err)
		return passThrough(results, ReasonUnexpectedError)
	}

	verdict, err := parseVerdict(resp)
	if err != nil {
		f.logger.Printf("judge verdict for %s unparseable: %v", platform, err)
		return passThrough(results, ReasonParseError)
	}

	// Verdict entries are matched by index, not position; the first entry
	// for an index wins and output follows crawl order.
	byIndex := make(map[int]scoreEntry, len(verdict))
	for _, entry := range verdict {
		if entry.Index < 0 || entry.Index >= len(results) {
			continue
		}
		if _, ok := byIndex[entry.Index]; !ok {
			byIndex[entry.Index] = entry
		}
	}

	filtered := make([]result.ScoredResult, 0, len(byIndex))
	for i, r := range results {
		entry, ok := byIndex[i]
		if !ok {
			continue
		}
		score := clampScore(entry.Score)
		if score < f.threshold {
			continue
		}
		filtered = append(filtered, result.ScoredResult{
			RawResult:       r,
			RelevanceScore:  score,
			RelevanceReason: entry.Reason,
		})
	}

	f.logger.Printf("filtered %s to %d relevant results (score >= %d)", platform, len(filtered), f.threshold)
	f.telemetry.RecordFilter(platform, len(filtered))
	return filtered
}

func parseVerdict(resp string) ([]scoreEntry, error) {
	raw, err := helpers.ExtractJSONArray(resp)
	if err != nil {
		return nil, err
	}
	var verdict []scoreEntry
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, err
	}
	return verdict, nil
}

// passThrough maps every raw result to a scored result carrying the given
// degradation reason. Order is preserved and nothing is dropped.
func passThrough(results []result.RawResult, reason string) []result.ScoredResult {
	out := make([]result.ScoredResult, len(results))
	for i, r := range results {
		out[i] = result.ScoredResult{RawResult: r, RelevanceScore: 0, RelevanceReason: reason}
	}
	return out
}

// clampScore folds the judge's float verdict into the 0-10 integer scale.
func clampScore(score float64) int {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return int(score)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
