package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/helpers"
	"github.com/mohammad-safakhou/scout/internal/judge"
)

const synthesisPromptTemplate = `You are configuring a web search agent for the platform "%s".

Respond with a JSON object containing the platform's public search results URL:
{"search_url": "https://example.com/search?q={query}"}

The URL must include the literal placeholder {query} where the search terms belong.
Return ONLY valid JSON, no other text.`

// LLMSynthesizer builds a crawler for a platform nobody wrote one for.
// The model proposes the platform's search URL and the generic web
// crawler does the rest.
type LLMSynthesizer struct {
	judge  judge.Judge
	cfg    config.SearchConfig
	logger *log.Logger
}

func NewLLMSynthesizer(j judge.Judge, cfg config.SearchConfig) *LLMSynthesizer {
	return &LLMSynthesizer{
		judge:  j,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
	}
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, platform string) (Crawler, error) {
	if s.judge == nil {
		return nil, fmt.Errorf("no judge available to synthesize agent for %s", platform)
	}

	resp, err := s.judge.Invoke(ctx, fmt.Sprintf(synthesisPromptTemplate, platform))
	if err != nil {
		return nil, fmt.Errorf("synthesis call failed for %s: %w", platform, err)
	}

	raw, err := helpers.ExtractJSON(resp)
	if err != nil {
		return nil, fmt.Errorf("synthesis returned no JSON for %s: %w", platform, err)
	}
	var proposal struct {
		SearchURL string `json:"search_url"`
	}
	if err := json.Unmarshal([]byte(raw), &proposal); err != nil {
		return nil, fmt.Errorf("synthesis returned malformed JSON for %s: %w", platform, err)
	}

	if !strings.Contains(proposal.SearchURL, "{query}") {
		return nil, fmt.Errorf("synthesized search url for %s missing {query} placeholder", platform)
	}
	probe := strings.ReplaceAll(proposal.SearchURL, "{query}", "probe")
	u, err := url.Parse(probe)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("synthesized search url for %s is not a usable http url", platform)
	}

	s.logger.Printf("synthesized agent for %s using %s", platform, proposal.SearchURL)
	return NewWebCrawler(platform, proposal.SearchURL, s.cfg), nil
}
