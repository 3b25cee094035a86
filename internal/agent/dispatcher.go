package agent

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/scout/internal/result"
)

// Dispatcher routes a platform name to its crawler and collects whatever
// the crawl yields. Crawl failures and synthesis failures are logged and
// reduce to zero results for that platform only; nothing escapes to the
// caller, so one platform can never abort a batch.
type Dispatcher struct {
	registry *Registry
	synth    Synthesizer
	logger   *log.Logger

	// synthMu serializes synthesis per platform key so two concurrent
	// runs for the same unregistered platform do not both synthesize.
	mu      sync.Mutex
	synthMu map[string]*sync.Mutex
}

func NewDispatcher(registry *Registry, synth Synthesizer) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		synth:    synth,
		logger:   log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags),
		synthMu:  make(map[string]*sync.Mutex),
	}
}

// Dispatch looks up the platform case-insensitively, crawls, and returns
// the raw results. An unregistered platform triggers exactly one synthesis
// attempt; on success the new crawler is registered for the remainder of
// the process lifetime and dispatch is retried once. On synthesis failure
// the platform is skipped with a warning.
func (d *Dispatcher) Dispatch(ctx context.Context, platform string, keywords []string, detail string) []result.RawResult {
	if c, ok := d.registry.Find(platform); ok {
		return d.crawl(ctx, c, platform, keywords, detail)
	}

	c, ok := d.synthesize(ctx, platform)
	if !ok {
		return nil
	}
	return d.crawl(ctx, c, platform, keywords, detail)
}

func (d *Dispatcher) crawl(ctx context.Context, c Crawler, platform string, keywords []string, detail string) []result.RawResult {
	results, err := c.Crawl(ctx, keywords, detail)
	if err != nil {
		d.logger.Printf("crawl failed for %s: %v", platform, err)
		return nil
	}
	return results
}

// synthesize builds and registers a crawler for an unknown platform. The
// per-key lock makes the synthesize-then-insert step atomic: a concurrent
// run either waits and reuses the winner's crawler or performs the single
// synthesis itself.
func (d *Dispatcher) synthesize(ctx context.Context, platform string) (Crawler, bool) {
	if d.synth == nil {
		d.logger.Printf("warning: no agent for %s and no synthesizer configured, skipping", platform)
		return nil, false
	}

	key := strings.ToLower(strings.TrimSpace(platform))
	lock := d.platformLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another run may have won the race while we waited.
	if c, ok := d.registry.Find(key); ok {
		return c, true
	}

	d.logger.Printf("no agent for %s, attempting synthesis", platform)
	c, err := d.synth.Synthesize(ctx, key)
	if err != nil {
		d.logger.Printf("warning: synthesis failed for %s, skipping: %v", platform, err)
		return nil, false
	}
	d.registry.Register(key, c)
	d.logger.Printf("synthesized and registered agent for %s", platform)
	return c, true
}

func (d *Dispatcher) platformLock(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.synthMu[key]
	if !ok {
		lock = &sync.Mutex{}
		d.synthMu[key] = lock
	}
	return lock
}
