package domain

// Layer identifies the abstraction tier a knowledge item belongs to.
// L1 (raw source documents) is reserved and never served by the engine.
type Layer string

const (
	LayerL1 Layer = "L1"
	LayerL2 Layer = "L2" // document summaries, ~200 tokens
	LayerL3 Layer = "L3" // topic summaries, ~500 tokens
	LayerL4 Layer = "L4" // atomic concepts, ~50 tokens
)

// RetrievableLayers lists the layers the engine can query, in precedence
// order (more specific evidence first).
var RetrievableLayers = []Layer{LayerL2, LayerL3, LayerL4}

// IsRetrievable reports whether the layer can be requested in a retrieval.
func (l Layer) IsRetrievable() bool {
	switch l {
	case LayerL2, LayerL3, LayerL4:
		return true
	}
	return false
}

// Precedence returns the layer's tiebreak rank; lower ranks win.
// L2 outranks L3, which outranks L4.
func (l Layer) Precedence() int {
	switch l {
	case LayerL2:
		return 0
	case LayerL3:
		return 1
	case LayerL4:
		return 2
	}
	return 3
}
