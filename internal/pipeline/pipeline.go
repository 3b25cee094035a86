package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/scout/internal/agent"
	"github.com/mohammad-safakhou/scout/internal/result"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

var pipelineTracer trace.Tracer = otel.Tracer("scout/internal/pipeline")

// Request carries one aggregation run's inputs. Keywords and Platforms
// are validated upstream; Detail may be empty.
type Request struct {
	Keywords  []string `json:"keywords"`
	Platforms []string `json:"platforms"`
	Detail    string   `json:"detail"`
}

// Pipeline sequences dispatch, filtering and summarization into one run.
// It never returns an error: every failure mode inside the stages reduces
// to fewer results or a degraded summary, and a Report always comes back.
type Pipeline struct {
	dispatcher *agent.Dispatcher
	filter     *Filter
	summarizer *Summarizer
	telemetry  *telemetry.Telemetry
	logger     *log.Logger
}

func New(dispatcher *agent.Dispatcher, filter *Filter, summarizer *Summarizer, tel *telemetry.Telemetry) *Pipeline {
	return &Pipeline{
		dispatcher: dispatcher,
		filter:     filter,
		summarizer: summarizer,
		telemetry:  tel,
		logger:     log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
}

// Run executes the full aggregation cycle. Platforms are dispatched
// sequentially in request order; platforms yielding zero raw results
// never reach the filter stage, and platforms whose filtered output is
// empty are omitted from the report mapping.
func (p *Pipeline) Run(ctx context.Context, req Request) result.Report {
	startTime := time.Now()
	ctx, span := pipelineTracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.StringSlice("search.keywords", req.Keywords),
			attribute.StringSlice("search.platforms", req.Platforms),
		))
	defer span.End()

	p.logger.Printf("starting run: keywords=%v platforms=%v", req.Keywords, req.Platforms)

	// Phase 1: dispatch every requested platform, accumulating raw
	// results per platform key in first-dispatch order.
	raw := make(map[string][]result.RawResult, len(req.Platforms))
	order := make([]string, 0, len(req.Platforms))
	for _, platform := range req.Platforms {
		dispatchCtx, dispatchSpan := pipelineTracer.Start(ctx, "pipeline.dispatch",
			trace.WithAttributes(attribute.String("search.platform", platform)))
		results := p.dispatcher.Dispatch(dispatchCtx, platform, req.Keywords, req.Detail)
		dispatchSpan.SetAttributes(attribute.Int("results.raw", len(results)))
		dispatchSpan.SetStatus(codes.Ok, "completed")
		dispatchSpan.End()

		p.telemetry.RecordDispatch(platform, len(results))
		p.logger.Printf("received %d results from %s", len(results), platform)
		if len(results) == 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(platform))
		if _, exists := raw[key]; !exists {
			order = append(order, key)
		}
		raw[key] = append(raw[key], results...)
	}
	span.AddEvent("dispatch.complete", trace.WithAttributes(
		attribute.Int("platforms.yielding", len(order)),
	))

	// Phase 2: judge each platform's batch independently.
	filtered := make(result.FilteredByPlatform, len(raw))
	for _, platform := range order {
		filterCtx, filterSpan := pipelineTracer.Start(ctx, "pipeline.filter",
			trace.WithAttributes(
				attribute.String("search.platform", platform),
				attribute.Int("results.raw", len(raw[platform])),
			))
		scored := p.filter.Filter(filterCtx, raw[platform], req.Detail, req.Keywords, platform)
		filterSpan.SetAttributes(attribute.Int("results.kept", len(scored)))
		filterSpan.SetStatus(codes.Ok, "completed")
		filterSpan.End()

		if len(scored) == 0 {
			continue
		}
		filtered[platform] = scored
	}
	span.AddEvent("filter.complete", trace.WithAttributes(
		attribute.Int("results.kept", filtered.TotalResults()),
	))

	// Phase 3: one summarization pass over everything that survived.
	summarizeCtx, summarizeSpan := pipelineTracer.Start(ctx, "pipeline.summarize")
	report := p.summarizer.Summarize(summarizeCtx, filtered, req.Detail, req.Keywords)
	summarizeSpan.SetStatus(codes.Ok, "completed")
	summarizeSpan.End()

	span.SetAttributes(attribute.Int("report.total_results", report.TotalResults))
	span.SetStatus(codes.Ok, "completed")

	p.telemetry.RecordRunEvent(telemetry.RunEvent{
		Keywords:     req.Keywords,
		Platforms:    req.Platforms,
		TotalResults: report.TotalResults,
		Degraded:     p.filter.Degraded(),
		Duration:     time.Since(startTime),
	})
	p.logger.Printf("run complete: %d relevant results across %d platforms in %s",
		report.TotalResults, len(report.ResultsByPlatform), time.Since(startTime).Round(time.Millisecond))
	return report
}
