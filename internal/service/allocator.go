package service

import (
	"sort"

	"github.com/cairnhq/cairn/internal/domain"
)

// ScoredItem pairs a knowledge item with its query similarity. Similarity
// is kept at full precision internally; rounding happens only in views.
type ScoredItem struct {
	Item       *domain.KnowledgeItem
	Similarity float64
}

// AllocateBudget selects, from the ranked per-layer candidate pools, the
// subset that maximizes aggregate relevance without exceeding the token
// budget. Greedy by similarity: flatten, sort, then walk the pool admitting
// whatever still fits — a rejected item does not stop the walk, since a
// later, cheaper item may still fit. The result is deterministic and
// monotonic in the budget, but not guaranteed globally optimal; an exact
// knapsack solve over the pool was rejected for latency.
//
// Candidates sharing a sourceId across layers are kept independently: the
// layer representations carry different content.
func AllocateBudget(candidatesByLayer map[domain.Layer][]ScoredItem, budget int) []ScoredItem {
	total := 0
	for _, pool := range candidatesByLayer {
		total += len(pool)
	}
	if total == 0 || budget <= 0 {
		return []ScoredItem{}
	}

	pool := make([]ScoredItem, 0, total)
	for _, candidates := range candidatesByLayer {
		pool = append(pool, candidates...)
	}

	// Similarity descending; ties prefer the cheaper item, then the more
	// specific layer (L2 over L3 over L4) for determinism.
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Similarity != pool[j].Similarity {
			return pool[i].Similarity > pool[j].Similarity
		}
		if pool[i].Item.TokenCount != pool[j].Item.TokenCount {
			return pool[i].Item.TokenCount < pool[j].Item.TokenCount
		}
		return pool[i].Item.Layer.Precedence() < pool[j].Item.Layer.Precedence()
	})

	selected := make([]ScoredItem, 0, len(pool))
	running := 0
	for _, candidate := range pool {
		cost := candidate.Item.TokenCount
		if cost <= 0 {
			continue
		}
		if running+cost > budget {
			continue
		}
		selected = append(selected, candidate)
		running += cost
		if running == budget {
			break
		}
	}

	return selected
}
