package research

import (
	"context"
	"sync"

	"github.com/sells-group/procurement-cli/pkg/anthropic"
	"github.com/sells-group/procurement-cli/pkg/jina"
)

// fakeLLM returns canned message text keyed by call order; calls past the
// last reply reuse it.
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	lastReq anthropic.MessageRequest
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if len(f.replies) > 0 {
		if i >= len(f.replies) {
			i = len(f.replies) - 1
		}
		text = f.replies[i]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

// fakeJina serves canned read/search responses.
type fakeJina struct {
	mu          sync.Mutex
	readContent map[string]string
	readErr     error
	searchData  []jina.SearchResult
	searchErr   error
	lastQuery   string
}

func (f *fakeJina) Read(ctx context.Context, targetURL string) (*jina.ReadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{URL: targetURL, Content: f.readContent[targetURL]},
	}, nil
}

func (f *fakeJina) Search(ctx context.Context, query string) (*jina.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = query
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &jina.SearchResponse{Code: 200, Data: f.searchData}, nil
}
