// Package archive keeps an in-memory full-text index over the scored
// results of past runs, so recent findings can be re-searched without
// re-crawling anything.
package archive

import (
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"

	"github.com/mohammad-safakhou/scout/internal/result"
)

// Entry is one archived scored result.
type Entry struct {
	DocID    string `json:"doc_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Content  string `json:"content"`
	Platform string `json:"platform"`
	Query    string `json:"query"`
	Score    int    `json:"score"`
	Reason   string `json:"reason"`
}

// Hit is one search match over the archive.
type Hit struct {
	Entry
	MatchScore float64 `json:"match_score"`
	Rank       int     `json:"rank"`
}

// Archive is a process-lifetime full-text index. Entries live only as
// long as the process; durable storage is the report table's job.
type Archive struct {
	mu    sync.RWMutex
	index bleve.Index
	meta  map[string]Entry
}

func New() (*Archive, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Archive{
		index: index,
		meta:  make(map[string]Entry),
	}, nil
}

// AddReport indexes every scored result the report carries.
func (a *Archive) AddReport(report result.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for platform, results := range report.ResultsByPlatform {
		for _, r := range results {
			entry := Entry{
				DocID:    uuid.NewString(),
				Title:    r.Title,
				URL:      r.URL,
				Content:  r.Content,
				Platform: platform,
				Query:    r.Query,
				Score:    r.RelevanceScore,
				Reason:   r.RelevanceReason,
			}
			if err := a.index.Index(entry.DocID, entry); err != nil {
				return err
			}
			a.meta[entry.DocID] = entry
		}
	}
	return nil
}

// Size reports how many entries the archive currently holds.
func (a *Archive) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.meta)
}

// Search runs a query-string search and returns up to k hits ranked by
// match score.
func (a *Archive) Search(q string, k int) ([]Hit, error) {
	if strings.TrimSpace(q) == "" || k <= 0 {
		return nil, nil
	}

	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k*3, 0, false)

	a.mu.RLock()
	defer a.mu.RUnlock()
	res, err := a.index.Search(searchReq)
	if err != nil {
		return nil, err
	}

	var out []Hit
	for i, hit := range res.Hits {
		entry, ok := a.meta[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{
			Entry:      entry,
			MatchScore: hit.Score,
			Rank:       i + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}
