package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/result"
)

// scriptedJudge replays canned responses in order and records every
// prompt it was sent.
type scriptedJudge struct {
	responses []string
	err       error
	prompts   []string
}

func (j *scriptedJudge) Invoke(ctx context.Context, prompt string) (string, error) {
	j.prompts = append(j.prompts, prompt)
	if j.err != nil {
		return "", j.err
	}
	if len(j.responses) == 0 {
		return "", errors.New("scripted judge exhausted")
	}
	resp := j.responses[0]
	j.responses = j.responses[1:]
	return resp, nil
}

func rawBatch(platform string, n int) []result.RawResult {
	out := make([]result.RawResult, n)
	for i := range out {
		out[i] = result.RawResult{
			Title:    fmt.Sprintf("%s item %d", platform, i),
			URL:      fmt.Sprintf("https://example.com/%s/%d", platform, i),
			Content:  fmt.Sprintf("content for item %d", i),
			Platform: platform,
		}
	}
	return out
}

func newTestFilter(j *scriptedJudge) *Filter {
	if j == nil {
		return NewFilter(nil, config.SearchConfig{}.Normalize(), nil)
	}
	return NewFilter(j, config.SearchConfig{}.Normalize(), nil)
}

func TestFilterSeedScenario(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": 0, "score": 9, "reason": "direct match"},
		  {"index": 1, "score": 4, "reason": "tangential"},
		  {"index": 2, "score": 7, "reason": "related discussion"}]`,
	}}
	f := newTestFilter(j)

	raw := rawBatch("reddit", 3)
	got := f.Filter(context.Background(), raw, "detail", []string{"golang"}, "reddit")

	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Title != raw[0].Title || got[0].RelevanceScore != 9 || got[0].RelevanceReason != "direct match" {
		t.Fatalf("unexpected first result: %+v", got[0])
	}
	if got[1].Title != raw[2].Title || got[1].RelevanceScore != 7 || got[1].RelevanceReason != "related discussion" {
		t.Fatalf("unexpected second result: %+v", got[1])
	}
}

func TestFilterKeepsAllWhenEverythingScoresHigh(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": 0, "score": 5, "reason": "ok"},
		  {"index": 1, "score": 8, "reason": "good"},
		  {"index": 2, "score": 10, "reason": "perfect"}]`,
	}}
	f := newTestFilter(j)

	raw := rawBatch("github", 3)
	got := f.Filter(context.Background(), raw, "", []string{"go"}, "github")

	if len(got) != len(raw) {
		t.Fatalf("expected all %d results kept, got %d", len(raw), len(got))
	}
	for i := range got {
		if got[i].Title != raw[i].Title {
			t.Fatalf("order not preserved at %d: got %q, want %q", i, got[i].Title, raw[i].Title)
		}
	}
}

func TestFilterDropsAllWhenEverythingScoresLow(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": 0, "score": 0, "reason": "spam"},
		  {"index": 1, "score": 4, "reason": "barely related"}]`,
	}}
	f := newTestFilter(j)

	got := f.Filter(context.Background(), rawBatch("reddit", 2), "", []string{"go"}, "reddit")
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d results", len(got))
	}
}

func TestFilterIdentityWithoutJudge(t *testing.T) {
	f := newTestFilter(nil)

	raw := rawBatch("reddit", 4)
	got := f.Filter(context.Background(), raw, "detail", []string{"go"}, "reddit")

	if len(got) != len(raw) {
		t.Fatalf("expected identity pass-through of %d results, got %d", len(raw), len(got))
	}
	for i := range got {
		if got[i].Title != raw[i].Title {
			t.Fatalf("order not preserved at %d", i)
		}
		if got[i].RelevanceScore != 0 || got[i].RelevanceReason != "" {
			t.Fatalf("expected unscored pass-through, got score=%d reason=%q", got[i].RelevanceScore, got[i].RelevanceReason)
		}
	}
	if !f.Degraded() {
		t.Fatalf("expected filter without judge to report degraded")
	}
}

func TestFilterFailsOpenOnJudgeError(t *testing.T) {
	j := &scriptedJudge{err: errors.New("oracle down")}
	f := newTestFilter(j)

	raw := rawBatch("reddit", 3)
	got := f.Filter(context.Background(), raw, "", []string{"go"}, "reddit")

	if len(got) != len(raw) {
		t.Fatalf("expected fail-open to keep all %d results, got %d", len(raw), len(got))
	}
	for i := range got {
		if got[i].RelevanceScore != 0 {
			t.Fatalf("expected score 0 at %d, got %d", i, got[i].RelevanceScore)
		}
		if got[i].RelevanceReason != ReasonUnexpectedError {
			t.Fatalf("expected reason %q, got %q", ReasonUnexpectedError, got[i].RelevanceReason)
		}
	}
}

func TestFilterFailsOpenOnMalformedVerdict(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "I could not score these results."},
		{"object instead of array", `{"index": 0, "score": 9}`},
		{"broken json", `[{"index": 0, "score":`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFilter(&scriptedJudge{responses: []string{tt.response}})
			raw := rawBatch("reddit", 2)
			got := f.Filter(context.Background(), raw, "", []string{"go"}, "reddit")

			if len(got) != len(raw) {
				t.Fatalf("expected fail-open to keep all results, got %d", len(got))
			}
			for _, r := range got {
				if r.RelevanceReason != ReasonParseError {
					t.Fatalf("expected reason %q, got %q", ReasonParseError, r.RelevanceReason)
				}
			}
		})
	}
}

func TestFilterAcceptsFencedVerdict(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		"```json\n[{\"index\": 0, \"score\": 8, \"reason\": \"solid\"}]\n```",
	}}
	f := newTestFilter(j)

	got := f.Filter(context.Background(), rawBatch("reddit", 1), "", []string{"go"}, "reddit")
	if len(got) != 1 || got[0].RelevanceScore != 8 {
		t.Fatalf("expected fenced verdict to parse, got %+v", got)
	}
}

func TestFilterAcceptsFractionalScores(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": 0, "score": 7.5, "reason": "close"}, {"index": 1, "score": 4.9, "reason": "weak"}]`,
	}}
	f := newTestFilter(j)

	got := f.Filter(context.Background(), rawBatch("reddit", 2), "", []string{"go"}, "reddit")
	if len(got) != 1 {
		t.Fatalf("expected one result above threshold, got %d", len(got))
	}
	if got[0].RelevanceScore != 7 {
		t.Fatalf("expected fractional score truncated to 7, got %d", got[0].RelevanceScore)
	}
}

func TestFilterIgnoresOutOfRangeIndices(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": -1, "score": 9, "reason": "bad"},
		  {"index": 0, "score": 9, "reason": "good"},
		  {"index": 7, "score": 9, "reason": "bad"}]`,
	}}
	f := newTestFilter(j)

	got := f.Filter(context.Background(), rawBatch("reddit", 2), "", []string{"go"}, "reddit")
	if len(got) != 1 {
		t.Fatalf("expected out-of-range indices ignored, got %d results", len(got))
	}
	if got[0].RelevanceReason != "good" {
		t.Fatalf("expected the in-range entry, got %+v", got[0])
	}
}

func TestFilterClampsScores(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": 0, "score": 15, "reason": "overshoot"},
		  {"index": 1, "score": -3, "reason": "undershoot"}]`,
	}}
	f := newTestFilter(j)

	got := f.Filter(context.Background(), rawBatch("reddit", 2), "", []string{"go"}, "reddit")
	if len(got) != 1 {
		t.Fatalf("expected only the clamped high score kept, got %d results", len(got))
	}
	if got[0].RelevanceScore != 10 {
		t.Fatalf("expected score clamped to 10, got %d", got[0].RelevanceScore)
	}
}

func TestFilterRestoresCrawlOrder(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": 2, "score": 9, "reason": "c"},
		  {"index": 0, "score": 8, "reason": "a"},
		  {"index": 1, "score": 7, "reason": "b"}]`,
	}}
	f := newTestFilter(j)

	raw := rawBatch("reddit", 3)
	got := f.Filter(context.Background(), raw, "", []string{"go"}, "reddit")

	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for i := range got {
		if got[i].Title != raw[i].Title {
			t.Fatalf("expected crawl order at %d: got %q, want %q", i, got[i].Title, raw[i].Title)
		}
	}
	if got[0].RelevanceScore != 8 || got[2].RelevanceScore != 9 {
		t.Fatalf("scores did not follow their indices: %+v", got)
	}
}

func TestFilterFirstVerdictEntryWins(t *testing.T) {
	j := &scriptedJudge{responses: []string{
		`[{"index": 0, "score": 9, "reason": "first"},
		  {"index": 0, "score": 2, "reason": "second"}]`,
	}}
	f := newTestFilter(j)

	got := f.Filter(context.Background(), rawBatch("reddit", 1), "", []string{"go"}, "reddit")
	if len(got) != 1 {
		t.Fatalf("expected duplicate index resolved to one result, got %d", len(got))
	}
	if got[0].RelevanceScore != 9 || got[0].RelevanceReason != "first" {
		t.Fatalf("expected the first entry for the index, got %+v", got[0])
	}
}

func TestFilterEmptyInputSkipsJudge(t *testing.T) {
	j := &scriptedJudge{responses: []string{`[]`}}
	f := newTestFilter(j)

	got := f.Filter(context.Background(), nil, "", []string{"go"}, "reddit")
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d", len(got))
	}
	if len(j.prompts) != 0 {
		t.Fatalf("expected no judge call for empty input, got %d", len(j.prompts))
	}
}

func TestFilterBatchesFirstFiftyOnly(t *testing.T) {
	j := &scriptedJudge{responses: []string{`[]`}}
	f := newTestFilter(j)

	f.Filter(context.Background(), rawBatch("reddit", 60), "", []string{"go"}, "reddit")

	if len(j.prompts) != 1 {
		t.Fatalf("expected one judge call, got %d", len(j.prompts))
	}
	prompt := j.prompts[0]
	if !strings.Contains(prompt, `"index": 49`) {
		t.Fatalf("expected entry 49 in the batch")
	}
	if strings.Contains(prompt, `"index": 50`) {
		t.Fatalf("expected batch to stop at 50 entries")
	}
	if !strings.Contains(prompt, "Analyze these 50 search results") {
		t.Fatalf("expected batch count of 50 in prompt")
	}
}

func TestFilterPromptContents(t *testing.T) {
	j := &scriptedJudge{responses: []string{`[]`}}
	f := newTestFilter(j)

	longTitle := strings.Repeat("t", 300)
	longContent := strings.Repeat("c", 2000)
	raw := []result.RawResult{{Title: longTitle, URL: "https://example.com/a", Content: longContent, Platform: "reddit"}}

	f.Filter(context.Background(), raw, "only rust comparisons", []string{"golang", "performance"}, "reddit")

	prompt := j.prompts[0]
	if !strings.Contains(prompt, "User's keywords: golang, performance") {
		t.Fatalf("expected keywords joined with comma, prompt was:\n%s", prompt)
	}
	if !strings.Contains(prompt, `User's detail/preferences: "only rust comparisons"`) {
		t.Fatalf("expected quoted detail in prompt")
	}
	if !strings.Contains(prompt, "Score 8-10") || !strings.Contains(prompt, "If detail is empty, focus only on keyword relevance") {
		t.Fatalf("expected scoring rubric in prompt")
	}
	if !strings.Contains(prompt, "Return ONLY valid JSON, no other text.") {
		t.Fatalf("expected JSON-only instruction in prompt")
	}
	if strings.Contains(prompt, longTitle) {
		t.Fatalf("expected title truncated to %d chars", maxTitleChars)
	}
	if !strings.Contains(prompt, longTitle[:maxTitleChars]) {
		t.Fatalf("expected truncated title present")
	}
	if strings.Contains(prompt, longContent) {
		t.Fatalf("expected content truncated to %d chars", maxContentChars)
	}
}
