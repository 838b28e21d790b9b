package query

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/plmforge/copilot/internal/util"
	"github.com/plmforge/copilot/pkg/common"
	"github.com/plmforge/copilot/pkg/logger"
)

// Retrieve runs hybrid retrieval for one query: embed the question, seed
// with the nearest entities, expand the subgraph with a bounded BFS and rank
// everything into a token-budgeted RetrievalContext.
//
// Retrieval is read-only and deterministic for a fixed graph: every
// traversal and ranking step breaks ties by natural key. No seed above the
// similarity floor yields an empty context, not a fallback subgraph.
func (c *QueryClient) Retrieve(ctx context.Context, queryText string) (*common.RetrievalContext, error) {
	rctx := &common.RetrievalContext{Query: queryText}

	seeds, err := util.RetryWithBackoff(ctx, 3, 200*time.Millisecond, 2*time.Second,
		func(ctx context.Context) ([]common.ScoredEntity, error) {
			return c.indexer.Search(ctx, queryText, c.options.SeedK, c.options.MinSimilarity)
		},
	)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		logger.Debug("[Query] no seeds above similarity floor", "query", queryText)
		return rctx, nil
	}
	rctx.Seeds = seeds

	nodes, rels, err := c.expand(ctx, seeds)
	if err != nil {
		return nil, err
	}
	rctx.Relationships = rels

	rctx.Entities, err = c.scoreNodes(ctx, nodes, rels)
	if err != nil {
		return nil, err
	}

	rctx.Snippets, err = c.collectSnippets(ctx, rctx.Entities, rels)
	if err != nil {
		return nil, err
	}

	c.truncateToBudget(rctx)
	return rctx, nil
}

// visit tracks a node discovered during expansion: hop distance from the
// nearest seed and the similarity inherited from it.
type visit struct {
	hops int
	sim  float64
}

// expand runs a breadth-first traversal from the seeds, bounded by hop limit
// and subgraph size. The frontier is processed in sorted key order so the
// node cap cuts deterministically.
func (c *QueryClient) expand(
	ctx context.Context,
	seeds []common.ScoredEntity,
) (map[string]visit, []common.Relationship, error) {
	visited := map[string]visit{}
	frontier := []string{}
	for _, s := range seeds {
		if _, ok := visited[s.Entity.Key]; ok {
			continue
		}
		visited[s.Entity.Key] = visit{hops: 0, sim: s.Similarity}
		frontier = append(frontier, s.Entity.Key)
	}
	sort.Strings(frontier)

	edgeSet := map[string]common.Relationship{}

	for hop := 0; hop < c.options.HopLimit && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		edges, err := c.storage.Neighbors(ctx, frontier)
		if err != nil {
			return nil, nil, err
		}

		next := []string{}
		for _, edge := range edges {
			key := string(edge.Type) + "|" + edge.SourceKey + "|" + edge.TargetKey
			edgeSet[key] = edge

			for _, nodeKey := range []string{edge.SourceKey, edge.TargetKey} {
				// Inherit similarity from the already visited endpoint.
				parent := edge.SourceKey
				if parent == nodeKey {
					parent = edge.TargetKey
				}
				parentVisit, ok := visited[parent]
				if !ok {
					continue
				}

				if existing, seen := visited[nodeKey]; seen {
					// Rediscovered within the same hop: keep the best
					// parent similarity.
					if existing.hops == hop+1 && parentVisit.sim > existing.sim {
						visited[nodeKey] = visit{hops: existing.hops, sim: parentVisit.sim}
					}
					continue
				}
				if len(visited) >= c.options.MaxSubgraph {
					continue
				}

				visited[nodeKey] = visit{hops: hop + 1, sim: parentVisit.sim}
				next = append(next, nodeKey)
			}
		}

		sort.Strings(next)
		frontier = next
	}

	rels := make([]common.Relationship, 0, len(edgeSet))
	for _, r := range edgeSet {
		// Drop edges whose far endpoint fell outside the node cap.
		if _, ok := visited[r.SourceKey]; !ok {
			continue
		}
		if _, ok := visited[r.TargetKey]; !ok {
			continue
		}
		rels = append(rels, r)
	}
	sort.Slice(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.SourceKey != b.SourceKey {
			return a.SourceKey < b.SourceKey
		}
		return a.TargetKey < b.TargetKey
	})

	return visited, rels, nil
}

// scoreNodes loads the subgraph entities and scores them: seed similarity
// decayed by hop distance, plus a degree-centrality bonus within the
// retrieved subgraph. Sorted by score descending, ties by key.
func (c *QueryClient) scoreNodes(
	ctx context.Context,
	nodes map[string]visit,
	rels []common.Relationship,
) ([]common.ScoredEntity, error) {
	keys := make([]string, 0, len(nodes))
	for key := range nodes {
		keys = append(keys, key)
	}
	entities, err := c.storage.GetEntities(ctx, keys)
	if err != nil {
		return nil, err
	}

	degree := map[string]int{}
	maxDegree := 1
	for _, r := range rels {
		degree[r.SourceKey]++
		degree[r.TargetKey]++
		if degree[r.SourceKey] > maxDegree {
			maxDegree = degree[r.SourceKey]
		}
		if degree[r.TargetKey] > maxDegree {
			maxDegree = degree[r.TargetKey]
		}
	}

	out := make([]common.ScoredEntity, 0, len(entities))
	for _, e := range entities {
		v := nodes[e.Key]
		base := v.sim * math.Pow(c.options.HopDecay, float64(v.hops))
		centrality := float64(degree[e.Key]) / float64(maxDegree)
		out = append(out, common.ScoredEntity{
			Entity:     e,
			Score:      base + c.options.CentralityWeight*centrality,
			Similarity: v.sim,
			Hops:       v.hops,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entity.Key < out[j].Entity.Key
	})
	return out, nil
}

// collectSnippets resolves relationship provenance into source record
// snippets, scored by the best-scoring entity the record touches.
func (c *QueryClient) collectSnippets(
	ctx context.Context,
	entities []common.ScoredEntity,
	rels []common.Relationship,
) ([]common.Snippet, error) {
	entityScore := map[string]float64{}
	for _, e := range entities {
		entityScore[e.Entity.Key] = e.Score
	}

	recordScore := map[string]float64{}
	for _, r := range rels {
		edgeScore := math.Max(entityScore[r.SourceKey], entityScore[r.TargetKey])
		for _, recID := range r.Provenance {
			if edgeScore > recordScore[recID] {
				recordScore[recID] = edgeScore
			}
		}
	}
	if len(recordScore) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(recordScore))
	for id := range recordScore {
		ids = append(ids, id)
	}
	records, err := c.storage.GetRecords(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]common.Snippet, 0, len(records))
	for _, rec := range records {
		if rec.Text == "" {
			continue
		}
		out = append(out, common.Snippet{
			RecordID: rec.ID,
			Text:     rec.Text,
			Score:    recordScore[rec.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out, nil
}

// truncateToBudget trims the context to the configured token budget.
// Entities are kept first (best scored first), then relationships, then
// snippets; each list is cut at the point the budget runs out.
func (c *QueryClient) truncateToBudget(rctx *common.RetrievalContext) {
	budget := c.options.ContextTokens

	spend := func(text string) bool {
		tokens := c.countTokens(text)
		if tokens > budget {
			return false
		}
		budget -= tokens
		return true
	}

	entities := rctx.Entities
	rctx.Entities = rctx.Entities[:0]
	for _, e := range entities {
		if !spend(entityLine(e)) {
			break
		}
		rctx.Entities = append(rctx.Entities, e)
	}

	kept := map[string]bool{}
	for _, e := range rctx.Entities {
		kept[e.Entity.Key] = true
	}

	rels := rctx.Relationships
	rctx.Relationships = rctx.Relationships[:0]
	for _, r := range rels {
		if !kept[r.SourceKey] || !kept[r.TargetKey] {
			continue
		}
		if !spend(relationshipLine(r)) {
			break
		}
		rctx.Relationships = append(rctx.Relationships, r)
	}

	snippets := rctx.Snippets
	rctx.Snippets = rctx.Snippets[:0]
	for _, s := range snippets {
		if !spend(snippetLine(s)) {
			break
		}
		rctx.Snippets = append(rctx.Snippets, s)
	}
}
