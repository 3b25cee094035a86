package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

// OpenAI is a chat-completions client satisfying Judge. Every call gets a
// per-request timeout and exactly one retry on transport errors, 429 and
// 5xx responses; client errors fail immediately.
type OpenAI struct {
	cfg       config.LLMConfig
	client    *http.Client
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

// FromConfig builds the judge from configuration. A missing API key means
// the oracle is not configured at all: the returned Judge is nil and the
// pipeline runs in degraded mode. The decision is made once here, not per
// call.
func FromConfig(cfg config.LLMConfig, tele *telemetry.Telemetry) Judge {
	if strings.TrimSpace(cfg.APIKey) == "" && os.Getenv("OPENAI_API_KEY") == "" {
		return nil
	}
	return NewOpenAI(cfg, tele)
}

// NewOpenAI builds the client without the configuration check; tests use
// it directly against an httptest server via cfg.BaseURL.
func NewOpenAI(cfg config.LLMConfig, tele *telemetry.Telemetry) *OpenAI {
	return &OpenAI{
		cfg:       cfg,
		client:    &http.Client{},
		logger:    log.New(log.Writer(), "[JUDGE] ", log.LstdFlags),
		telemetry: tele,
	}
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Invoke sends one prompt and returns the raw response text.
func (o *OpenAI) Invoke(ctx context.Context, prompt string) (string, error) {
	var (
		text      string
		inTokens  int64
		outTokens int64
		err       error
	)

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
			}
			o.logger.Printf("retrying judge call after error: %v", err)
		}

		var retryable bool
		text, inTokens, outTokens, retryable, err = o.send(ctx, prompt)
		if err == nil || !retryable {
			break
		}
	}

	cost := o.telemetry.CalculateCost(inTokens, outTokens, o.cfg.CostPer1K, o.cfg.CostPer1KOutput)
	o.telemetry.RecordJudgeUsage(o.cfg.Model, inTokens, outTokens, cost, err)

	if err != nil {
		return "", err
	}
	return text, nil
}

func (o *OpenAI) send(ctx context.Context, prompt string) (string, int64, int64, bool, error) {
	apiKey := o.cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return "", 0, 0, false, fmt.Errorf("OpenAI API key not configured")
	}

	body, err := json.Marshal(chatReq{
		Model:       o.cfg.Model,
		Messages:    []chatMsg{{Role: "user", Content: prompt}},
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		return "", 0, 0, false, fmt.Errorf("marshal: %w", err)
	}

	callCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", 0, 0, false, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", 0, 0, true, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", 0, 0, retryable, fmt.Errorf("OpenAI status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, false, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, false, fmt.Errorf("no choices")
	}

	return out.Choices[0].Message.Content, int64(out.Usage.PromptTokens), int64(out.Usage.CompletionTokens), false, nil
}
