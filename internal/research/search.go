package research

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/resilience"
	"github.com/sells-group/procurement-cli/pkg/jina"
)

// JinaSearcher finds candidate sources via Jina web search.
type JinaSearcher struct {
	client     jina.Client
	maxSources int
	retry      resilience.RetryConfig
}

// NewJinaSearcher creates the production search provider. maxSources caps
// the candidates returned per round; zero means no cap.
func NewJinaSearcher(client jina.Client, maxSources int) *JinaSearcher {
	return &JinaSearcher{
		client:     client,
		maxSources: maxSources,
		retry:      resilience.DefaultRetryConfig(),
	}
}

// Find implements Searcher. Missing-info hints from a prior round are
// folded into the query so the follow-up search targets the gaps.
func (s *JinaSearcher) Find(ctx context.Context, query string, missing []string) ([]model.Source, error) {
	q := query
	if len(missing) > 0 {
		q += " " + strings.Join(missing, " ")
	}

	// Copy so concurrent searches never share a mutable config.
	retry := s.retry
	retry.OnRetry = resilience.RetryLogger("jina", "search")
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*jina.SearchResponse, error) {
		return s.client.Search(ctx, q)
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: find sources")
	}

	sources := make([]model.Source, 0, len(resp.Data))
	seen := make(map[string]struct{}, len(resp.Data))
	for _, hit := range resp.Data {
		id := SourceID(hit.URL)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		sources = append(sources, model.Source{ID: id, URL: hit.URL, Title: hit.Title})
		if s.maxSources > 0 && len(sources) >= s.maxSources {
			break
		}
	}

	zap.L().Info("search: found sources",
		zap.String("query", q),
		zap.Int("results", len(resp.Data)),
		zap.Int("kept", len(sources)),
	)

	return sources, nil
}

// SourceID derives a stable identity from a source URL so repeat search
// rounds dedupe against already-known candidates.
func SourceID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	id := strings.ToLower(strings.TrimPrefix(u.Host, "www.")) + strings.TrimSuffix(u.Path, "/")
	return id
}
