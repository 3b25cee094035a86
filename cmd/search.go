package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/agent"
	"github.com/mohammad-safakhou/scout/internal/judge"
	"github.com/mohammad-safakhou/scout/internal/pipeline"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

func searchCMD() *cobra.Command {
	var cfgPath string
	var keywords []string
	var platforms []string
	var detail string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one search and print the report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(keywords) == 0 {
				return fmt.Errorf("at least one keyword required (--keywords)")
			}
			if len(platforms) == 0 {
				return fmt.Errorf("at least one platform required (--platforms)")
			}

			cfg := config.LoadConfig(cfgPath)
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			defer tele.Shutdown()

			pipe := buildPipeline(cfg, tele)
			report := pipe.Run(cmd.Context(), pipeline.Request{
				Keywords:  keywords,
				Platforms: platforms,
				Detail:    detail,
			})

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "search keywords (comma separated)")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "platforms to crawl (reddit, github)")
	cmd.Flags().StringVar(&detail, "detail", "", "free-form note about what makes a result relevant")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}

// buildPipeline wires crawlers, filter and summarizer the same way the HTTP
// server does. With no API key configured the judge stays nil and the
// pipeline runs degraded.
func buildPipeline(cfg *config.Config, tele *telemetry.Telemetry) *pipeline.Pipeline {
	j := judge.FromConfig(cfg.LLM, tele)
	if j == nil {
		log.Printf("llm.api_key not set, running degraded (no relevance filtering or summaries)")
	}

	registry := agent.NewRegistry()
	reddit := agent.NewRedditCrawler(cfg.Search)
	registry.Register(reddit.Platform(), reddit)
	github := agent.NewGitHubCrawler(cfg.Search)
	registry.Register(github.Platform(), github)

	dispatcher := agent.NewDispatcher(registry, agent.NewLLMSynthesizer(j, cfg.Search))
	return pipeline.New(dispatcher, pipeline.NewFilter(j, cfg.Search, tele), pipeline.NewSummarizer(j), tele)
}
