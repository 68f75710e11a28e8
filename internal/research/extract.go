package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/cost"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/resilience"
	"github.com/sells-group/procurement-cli/pkg/anthropic"
	"github.com/sells-group/procurement-cli/pkg/jina"
)

// pageContentCap bounds how much page markdown is sent to the model.
const pageContentCap = 12000

const extractSystemPrompt = `You are a data extraction expert. From the provided page text, extract the product name and a short value (1-5 words) for each requested factor. List any factor the page does not answer under "missing".
Reply with only a JSON object:
{"product_name": "...", "fields": {"<factor>": "<value>"}, "missing": ["<factor>", ...]}`

// LLMExtractor fetches a candidate page through Jina Reader and extracts
// the comparison factors with an Anthropic model.
type LLMExtractor struct {
	reader jina.Client
	llm    anthropic.Client
	model  string
	retry  resilience.RetryConfig
	costs  *cost.Calculator
}

// NewLLMExtractor creates the production extraction oracle.
func NewLLMExtractor(reader jina.Client, llm anthropic.Client, model string) *LLMExtractor {
	return &LLMExtractor{
		reader: reader,
		llm:    llm,
		model:  model,
		retry:  resilience.DefaultRetryConfig(),
		costs:  cost.NewCalculator(cost.DefaultRates()),
	}
}

type extractReply struct {
	ProductName string            `json:"product_name"`
	Fields      map[string]string `json:"fields"`
	Missing     []string          `json:"missing"`
}

// Extract implements Extractor. A page that cannot be fetched is a
// source_unavailable failure; a page missing requested factors is a
// missing_info failure naming the gaps.
func (e *LLMExtractor) Extract(ctx context.Context, src model.Source, factors []string) (*model.ProductRecord, error) {
	log := zap.L().With(zap.String("source", src.ID))

	content, err := e.fetch(ctx, src.URL)
	if err != nil {
		return nil, &ExtractError{Kind: KindSourceUnavailable, SourceID: src.ID, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &ExtractError{
			Kind:     KindSourceUnavailable,
			SourceID: src.ID,
			Err:      eris.Errorf("empty page content for %s", src.URL),
		}
	}
	if len(content) > pageContentCap {
		content = content[:pageContentCap]
	}

	reply, err := e.ask(ctx, content, factors)
	if err != nil {
		return nil, &ExtractError{Kind: KindExtractionFailed, SourceID: src.ID, Err: err}
	}

	if strings.TrimSpace(reply.ProductName) == "" {
		return nil, &ExtractError{
			Kind:     KindExtractionFailed,
			SourceID: src.ID,
			Err:      eris.New("no product name extracted"),
		}
	}

	missing := missingFactors(reply, factors)
	if len(missing) > 0 {
		log.Info("extract: page lacks requested factors",
			zap.Strings("missing", missing),
		)
		return nil, &ExtractError{
			Kind:          KindMissingInfo,
			SourceID:      src.ID,
			MissingFields: qualify(reply.ProductName, missing),
		}
	}

	record := &model.ProductRecord{
		SourceID:    src.ID,
		ProductName: reply.ProductName,
		Fields:      make(map[string]string, len(factors)),
	}
	for _, f := range factors {
		record.Fields[f] = strings.TrimSpace(reply.Fields[f])
	}

	log.Debug("extract: record complete", zap.String("product", record.ProductName))
	return record, nil
}

func (e *LLMExtractor) fetch(ctx context.Context, pageURL string) (string, error) {
	// Copy so concurrent extractions never share a mutable config.
	retry := e.retry
	retry.OnRetry = resilience.RetryLogger("jina", "read")
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*jina.ReadResponse, error) {
		return e.reader.Read(ctx, pageURL)
	})
	if err != nil {
		return "", eris.Wrap(err, "fetch page")
	}

	zap.L().Debug("extract: reader usage",
		zap.Int("tokens", resp.Data.Usage.Tokens),
		zap.Float64("cost_usd", e.costs.Jina(resp.Data.Usage.Tokens)),
	)
	return resp.Data.Content, nil
}

func (e *LLMExtractor) ask(ctx context.Context, content string, factors []string) (*extractReply, error) {
	prompt := fmt.Sprintf(
		"Extract the product name and these factors: %s.\n\n--- Page Content ---\n%s\n--- End Content ---",
		strings.Join(factors, ", "), content,
	)

	retry := e.retry
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: 1024,
			System:    extractSystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract fields")
	}

	zap.L().Debug("extract: llm usage",
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("cost_usd", e.costs.Claude(e.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)),
	)

	var reply extractReply
	if err := unmarshalLenient(resp.Text(), &reply); err != nil {
		return nil, eris.Wrap(err, "parse extraction reply")
	}
	return &reply, nil
}

// missingFactors returns the requested factors the reply did not answer.
func missingFactors(reply *extractReply, factors []string) []string {
	reported := make(map[string]struct{}, len(reply.Missing))
	for _, m := range reply.Missing {
		reported[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}

	var missing []string
	for _, f := range factors {
		if _, ok := reported[strings.ToLower(f)]; ok {
			missing = append(missing, f)
			continue
		}
		if strings.TrimSpace(reply.Fields[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// qualify prefixes each gap with the product it belongs to so the next
// search round can target it.
func qualify(product string, missing []string) []string {
	out := make([]string, len(missing))
	for i, m := range missing {
		out[i] = fmt.Sprintf("%s %s", product, m)
	}
	return out
}
