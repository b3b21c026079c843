package domain

import "strings"

const (
	// DefaultMaxTokens is the budget applied when the caller omits one.
	DefaultMaxTokens = 2000
	// MaxTokensCeiling is the hard budget ceiling; caller values above it
	// are clamped, never rejected.
	MaxTokensCeiling = 8000
)

// ContextQuery is the request-scoped input to context compression. It has
// no identity beyond the single call that produced it.
type ContextQuery struct {
	Text        string
	TenantID    string // supplied by the authenticated caller context
	WorkspaceID string
	// MaxTokens is the requested budget; nil means "not supplied" and
	// resolves to DefaultMaxTokens. An explicit 0 is a valid budget.
	MaxTokens *int
	Layers    []Layer
	// IncludeTopicMembers requests explicit expansion of matched topics
	// into their member document summaries.
	IncludeTopicMembers bool
}

// Normalize trims the query text, resolves the budget, and defaults Layers
// to all retrievable layers. Returns ErrInvalidQuery when the text is empty
// after trimming, and a validation error for an unknown layer.
func (q *ContextQuery) Normalize() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return ErrInvalidQuery
	}
	if q.TenantID == "" {
		return ErrTenantNotFound
	}

	budget := DefaultMaxTokens
	if q.MaxTokens != nil {
		budget = *q.MaxTokens
	}
	if budget < 0 {
		budget = 0
	}
	if budget > MaxTokensCeiling {
		budget = MaxTokensCeiling
	}
	q.MaxTokens = &budget

	if len(q.Layers) == 0 {
		q.Layers = append([]Layer(nil), RetrievableLayers...)
		return nil
	}
	seen := make(map[Layer]bool, len(q.Layers))
	layers := make([]Layer, 0, len(q.Layers))
	for _, layer := range q.Layers {
		if !layer.IsRetrievable() {
			return NewDomainError(ErrCodeValidation, "layer is not retrievable: "+string(layer))
		}
		if seen[layer] {
			continue
		}
		seen[layer] = true
		layers = append(layers, layer)
	}
	q.Layers = layers
	return nil
}

// Budget returns the resolved token budget. Call after Normalize.
func (q *ContextQuery) Budget() int {
	if q.MaxTokens == nil {
		return DefaultMaxTokens
	}
	return *q.MaxTokens
}
