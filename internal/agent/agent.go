// Package agent holds the crawler capability registry and the dispatcher
// that routes platform names to crawlers, synthesizing new capabilities on
// demand for platforms nobody registered.
package agent

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/scout/internal/result"
)

// Crawler produces raw search results for one platform. Crawl failures are
// returned as errors and absorbed at the dispatch boundary; a crawler never
// takes the whole batch down.
type Crawler interface {
	Platform() string
	Crawl(ctx context.Context, keywords []string, detail string) ([]result.RawResult, error)
}

// Synthesizer constructs a crawler capability for a platform that has no
// registered agent. Implementations may consult the judge oracle; failure
// just means the platform is skipped for this run.
type Synthesizer interface {
	Synthesize(ctx context.Context, platform string) (Crawler, error)
}

// Registry is the process-wide platform-name to crawler mapping. Keys are
// lowercased; lookups are case-insensitive. It is constructed once per
// process (or per test fixture) and shared by reference.
type Registry struct {
	mu       sync.RWMutex
	crawlers map[string]Crawler
}

func NewRegistry() *Registry {
	return &Registry{crawlers: make(map[string]Crawler)}
}

// Register adds a crawler under the given platform name. The insert is
// idempotent: when the key already exists the registered crawler wins and
// the call reports false. Inserts never interleave partially.
func (r *Registry) Register(platform string, c Crawler) bool {
	key := strings.ToLower(strings.TrimSpace(platform))
	if key == "" || c == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.crawlers[key]; exists {
		return false
	}
	r.crawlers[key] = c
	return true
}

// Find looks up a crawler case-insensitively.
func (r *Registry) Find(platform string) (Crawler, bool) {
	key := strings.ToLower(strings.TrimSpace(platform))
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.crawlers[key]
	return c, ok
}

// Platforms returns the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.crawlers))
	for name := range r.crawlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
