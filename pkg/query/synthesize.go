package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plmforge/copilot/pkg/ai"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/logger"
)

// Synthesize turns a retrieval context into a grounded answer. An empty
// context short-circuits to the deterministic insufficient-context answer
// without touching the model. Otherwise the context is serialized with
// [[record-id]] citation tags and handed to the chat model; citations in the
// response are validated against the record ids that were actually in the
// prompt, from snippets or relationship provenance.
func (c *QueryClient) Synthesize(
	ctx context.Context,
	queryText string,
	rctx *common.RetrievalContext,
) (*common.Answer, error) {
	if rctx.Empty() {
		return &common.Answer{
			Text:          ai.InsufficientContextAnswer,
			LowConfidence: true,
		}, nil
	}

	contextStr := serializeContext(rctx)

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	before := c.aiClient.GetMetrics()
	start := time.Now()

	text, err := c.aiClient.GenerateChat(ctx,
		[]ai.ChatMessage{{Role: "user", Message: queryText}},
		ai.WithSystemPrompts(fmt.Sprintf(ai.QueryPrompt, contextStr)),
		ai.WithTemperature(c.options.Temperature),
		ai.WithMaxTokens(c.options.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("answer synthesis: %w", err)
	}

	after := c.aiClient.GetMetrics()

	answer := &common.Answer{
		Text:         text,
		PromptTokens: after.InputTokens - before.InputTokens,
		OutputTokens: after.OutputTokens - before.OutputTokens,
		Latency:      time.Since(start),
	}

	// Relationship lines carry [[id]] tags too, so their provenance counts
	// as citable even when the snippet itself fell out of the token budget.
	known := map[string]bool{}
	for _, s := range rctx.Snippets {
		known[s.RecordID] = true
	}
	for _, r := range rctx.Relationships {
		for _, id := range r.Provenance {
			known[id] = true
		}
	}
	for _, id := range ExtractCitations(text) {
		if !known[id] {
			logger.Warn("[Query] answer cites unknown record", "citation", id)
			continue
		}
		answer.Citations = append(answer.Citations, id)
	}

	if c.options.CitationRequired && len(answer.Citations) == 0 {
		logger.Warn("[Query] answer carries no valid citations", "query", queryText)
		answer.LowConfidence = true
	}
	return answer, nil
}

// Ask is the full query turn: retrieve, then synthesize.
func (c *QueryClient) Ask(ctx context.Context, queryText string) (*common.Answer, error) {
	rctx, err := c.Retrieve(ctx, queryText)
	if err != nil {
		return nil, err
	}
	return c.Synthesize(ctx, queryText, rctx)
}

// serializeContext renders the retrieval context into the prompt section.
// Every snippet line ends with its [[record-id]] tag so the model can copy
// citations verbatim.
func serializeContext(rctx *common.RetrievalContext) string {
	var b strings.Builder

	b.WriteString("## Entities\n")
	for _, e := range rctx.Entities {
		b.WriteString(entityLine(e))
		b.WriteString("\n")
	}

	b.WriteString("\n## Relationships\n")
	for _, r := range rctx.Relationships {
		b.WriteString(relationshipLine(r))
		b.WriteString("\n")
	}

	b.WriteString("\n## Source Records\n")
	for _, s := range rctx.Snippets {
		b.WriteString(snippetLine(s))
		b.WriteString("\n")
	}

	return b.String()
}

func entityLine(e common.ScoredEntity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s %s", e.Entity.Type, e.Entity.Key)
	if e.Entity.Name != "" && e.Entity.Name != e.Entity.Key {
		fmt.Fprintf(&b, " (%s)", e.Entity.Name)
	}
	if e.Entity.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Entity.Description)
	}
	for _, k := range sortedPropKeys(e.Entity.Props) {
		fmt.Fprintf(&b, " [%s=%s]", k, e.Entity.Props[k])
	}
	return b.String()
}

func relationshipLine(r common.Relationship) string {
	line := fmt.Sprintf("- %s %s %s", r.SourceKey, r.Type, r.TargetKey)
	if r.Description != "" {
		line += ": " + r.Description
	}
	for _, id := range r.Provenance {
		line += fmt.Sprintf(" [[%s]]", id)
	}
	return line
}

func snippetLine(s common.Snippet) string {
	return fmt.Sprintf("- %s [[%s]]", s.Text, s.RecordID)
}

func sortedPropKeys(props map[string]string) []string {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
