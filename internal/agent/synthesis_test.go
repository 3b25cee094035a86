package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/scout/config"
)

type fakeJudge struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeJudge) Invoke(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestSynthesizeBuildsWebCrawler(t *testing.T) {
	j := &fakeJudge{response: `{"search_url": "https://stackoverflow.com/search?q={query}"}`}
	s := NewLLMSynthesizer(j, config.SearchConfig{}.Normalize())

	c, err := s.Synthesize(context.Background(), "stackoverflow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wc, ok := c.(*WebCrawler)
	if !ok {
		t.Fatalf("expected *WebCrawler, got %T", c)
	}
	if wc.Platform() != "stackoverflow" {
		t.Fatalf("expected platform stackoverflow, got %q", wc.Platform())
	}
	if wc.searchURL != "https://stackoverflow.com/search?q={query}" {
		t.Fatalf("unexpected search url %q", wc.searchURL)
	}
	if len(j.prompts) != 1 || !strings.Contains(j.prompts[0], `"stackoverflow"`) {
		t.Fatalf("expected one prompt naming the platform, got %v", j.prompts)
	}
}

func TestSynthesizeHandlesFencedResponse(t *testing.T) {
	j := &fakeJudge{response: "Here you go:\n```json\n{\"search_url\": \"https://lobste.rs/search?q={query}\"}\n```"}
	s := NewLLMSynthesizer(j, config.SearchConfig{}.Normalize())

	c, err := s.Synthesize(context.Background(), "lobsters")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Platform() != "lobsters" {
		t.Fatalf("expected platform lobsters, got %q", c.Platform())
	}
}

func TestSynthesizeRejectsBadURLs(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"missing placeholder", `{"search_url": "https://example.com/search"}`},
		{"not http", `{"search_url": "ftp://example.com/search?q={query}"}`},
		{"no host", `{"search_url": "http:///search?q={query}"}`},
		{"not json", `search for it on example.com`},
		{"wrong shape", `{"url": "https://example.com/search?q={query}"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := NewLLMSynthesizer(&fakeJudge{response: tt.response}, config.SearchConfig{}.Normalize())
			if _, err := s.Synthesize(context.Background(), "example"); err == nil {
				t.Fatalf("expected error for response %q", tt.response)
			}
		})
	}
}

func TestSynthesizePropagatesJudgeErrors(t *testing.T) {
	s := NewLLMSynthesizer(&fakeJudge{err: errors.New("judge offline")}, config.SearchConfig{}.Normalize())
	if _, err := s.Synthesize(context.Background(), "example"); err == nil {
		t.Fatalf("expected judge error to propagate")
	}
}

func TestSynthesizeRequiresJudge(t *testing.T) {
	s := NewLLMSynthesizer(nil, config.SearchConfig{}.Normalize())
	if _, err := s.Synthesize(context.Background(), "example"); err == nil {
		t.Fatalf("expected error when no judge is configured")
	}
}
