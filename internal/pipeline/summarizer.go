package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/scout/internal/helpers"
	"github.com/mohammad-safakhou/scout/internal/judge"
	"github.com/mohammad-safakhou/scout/internal/result"
)

// Summary texts for the degraded paths. The summary field is always a
// human-readable sentence, never empty.
const (
	SummaryNoJudge    = "LLM not available - no summary generated"
	SummaryNoResults  = "No relevant results found matching your criteria."
	summaryFallbackFn = "Found %d relevant results across %d platforms."
)

const (
	topResultsPerPlatform = 5
	maxPreviewTitleChars  = 150
)

const summarizePromptTemplate = `Generate a concise summary of search results.

User's keywords: %s
User's preferences: "%s"

Results found: %d relevant items across %d platforms

Top results by platform:
%s

Generate a concise 2-3 sentence summary that:
1. Highlights the most relevant findings
2. Mentions which platforms had the best results
3. Notes any patterns or themes across results
4. Relates findings to user's preferences (if provided)

Return ONLY the summary text, no extra formatting.`

// Summarizer produces the report's narrative from the filtered results:
// one judge call over a compact per-platform top-5 digest. Judge failures
// degrade to templated count summaries; a report always comes back.
type Summarizer struct {
	judge  judge.Judge
	logger *log.Logger
}

func NewSummarizer(j judge.Judge) *Summarizer {
	return &Summarizer{
		judge:  j,
		logger: log.New(log.Writer(), "[SUMMARY] ", log.LstdFlags),
	}
}

// Summarize builds the final report. TotalResults is always the exact sum
// of per-platform counts and ResultsByPlatform passes through unchanged.
// TopResults is attached only when the judge call succeeded.
func (s *Summarizer) Summarize(ctx context.Context, filtered result.FilteredByPlatform, detail string, keywords []string) result.Report {
	total := filtered.TotalResults()

	if s.judge == nil {
		return result.Report{
			Summary:           SummaryNoJudge,
			TotalResults:      total,
			ResultsByPlatform: filtered,
		}
	}
	if total == 0 {
		return result.Report{
			Summary:           SummaryNoResults,
			TotalResults:      0,
			ResultsByPlatform: filtered,
		}
	}

	s.logger.Printf("generating summary for %d results across %d platforms", total, len(filtered))

	digest := topResults(filtered)
	encoded, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		s.logger.Printf("encoding digest failed: %v", err)
		return fallbackReport(filtered, total)
	}
	prompt := fmt.Sprintf(summarizePromptTemplate, strings.Join(keywords, ", "), detail, total, len(filtered), encoded)

	resp, err := s.judge.Invoke(ctx, prompt)
	if err != nil {
		s.logger.Printf("judge call failed: %v", err)
		return fallbackReport(filtered, total)
	}

	summary := helpers.StripCodeFence(resp)
	if summary == "" {
		s.logger.Printf("judge returned empty summary")
		return fallbackReport(filtered, total)
	}

	return result.Report{
		Summary:           summary,
		TotalResults:      total,
		ResultsByPlatform: filtered,
		TopResults:        digest,
	}
}

// topResults selects each platform's five highest-scoring results. The
// sort is stable so tied scores keep their crawl order.
func topResults(filtered result.FilteredByPlatform) map[string][]result.ResultPreview {
	digest := make(map[string][]result.ResultPreview, len(filtered))
	for platform, results := range filtered {
		if len(results) == 0 {
			continue
		}
		ranked := make([]result.ScoredResult, len(results))
		copy(ranked, results)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].RelevanceScore > ranked[j].RelevanceScore
		})
		if len(ranked) > topResultsPerPlatform {
			ranked = ranked[:topResultsPerPlatform]
		}

		previews := make([]result.ResultPreview, 0, len(ranked))
		for _, r := range ranked {
			previews = append(previews, result.ResultPreview{
				Title:  truncate(r.Title, maxPreviewTitleChars),
				Score:  r.RelevanceScore,
				Reason: r.RelevanceReason,
			})
		}
		digest[platform] = previews
	}
	return digest
}

func fallbackReport(filtered result.FilteredByPlatform, total int) result.Report {
	return result.Report{
		Summary:           fmt.Sprintf(summaryFallbackFn, total, len(filtered)),
		TotalResults:      total,
		ResultsByPlatform: filtered,
	}
}
