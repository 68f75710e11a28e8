package research

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/cost"
	"github.com/sells-group/procurement-cli/internal/registry"
	"github.com/sells-group/procurement-cli/internal/resilience"
	"github.com/sells-group/procurement-cli/pkg/anthropic"
)

const clarifySystemPrompt = `You are a procurement analysis expert. Evaluate a user's query about a product or service category.
1. If the query names a specific category (e.g. "CRM software", "API gateways"), refine it minimally for web search. Never change the core subject.
2. If the query is too broad to research (e.g. "software", "tools"), flag it as ambiguous and write one question that would narrow it down.
Reply with only a JSON object:
{"ambiguous": bool, "question": "...", "clarified_query": "...", "category": "one or two word category label"}`

// LLMClarifier assesses queries with an Anthropic model and fills in
// comparison factors from the template registry.
type LLMClarifier struct {
	client  anthropic.Client
	model   string
	factors *registry.FactorRegistry
	retry   resilience.RetryConfig
	costs   *cost.Calculator
}

// NewLLMClarifier creates the production clarification oracle.
func NewLLMClarifier(client anthropic.Client, model string, factors *registry.FactorRegistry) *LLMClarifier {
	return &LLMClarifier{
		client:  client,
		model:   model,
		factors: factors,
		retry:   resilience.DefaultRetryConfig(),
		costs:   cost.NewCalculator(cost.DefaultRates()),
	}
}

type clarifyReply struct {
	Ambiguous      bool   `json:"ambiguous"`
	Question       string `json:"question"`
	ClarifiedQuery string `json:"clarified_query"`
	Category       string `json:"category"`
}

// Assess implements Clarifier.
func (c *LLMClarifier) Assess(ctx context.Context, query string) (*Assessment, error) {
	// Copy so concurrent assessments never share a mutable config.
	retry := c.retry
	retry.OnRetry = resilience.RetryLogger("anthropic", "clarify")

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: 512,
			System:    clarifySystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf("Evaluate and refine this product query: %q", query)},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "clarify: assess query")
	}

	zap.L().Debug("clarify: llm usage",
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("cost_usd", c.costs.Claude(c.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)),
	)

	var reply clarifyReply
	if err := unmarshalLenient(resp.Text(), &reply); err != nil {
		return nil, eris.Wrap(err, "clarify: parse assessment")
	}

	if reply.Ambiguous {
		question := reply.Question
		if question == "" {
			question = "Which specific product or service category should be compared?"
		}
		return &Assessment{Ambiguous: true, Question: question}, nil
	}

	clarified := reply.ClarifiedQuery
	if clarified == "" {
		clarified = query
	}

	factors, matched := c.factors.Lookup(reply.Category)
	zap.L().Debug("clarify: query assessed",
		zap.String("clarified_query", clarified),
		zap.String("category", reply.Category),
		zap.Bool("template_match", matched),
	)

	return &Assessment{
		ClarifiedQuery: clarified,
		Category:       reply.Category,
		Factors:        factors,
	}, nil
}
