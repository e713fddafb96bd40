package reconcile

import (
	"strings"

	"github.com/agext/levenshtein"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

// Similarity scores how likely two holiday names describe the same event,
// in [0,1]. It takes the better of token-overlap (robust to word reordering
// and dropped qualifiers) and normalized edit distance (robust to typos and
// minor spelling variants). Case and punctuation are ignored.
func Similarity(a, b string) float64 {
	ka := model.ClusterKey(a)
	kb := model.ClusterKey(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}

	jaccard := tokenOverlap(ka, kb)
	edit := levenshtein.Match(ka, kb, nil)
	if jaccard > edit {
		return jaccard
	}
	return edit
}

// tokenOverlap computes the Jaccard index over the cluster-key tokens.
func tokenOverlap(ka, kb string) float64 {
	as := strings.Fields(ka)
	bs := strings.Fields(kb)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(as))
	for _, t := range as {
		setA[t] = true
	}
	setB := make(map[string]bool, len(bs))
	for _, t := range bs {
		setB[t] = true
	}
	inter := 0
	union := len(setA)
	for t := range setB {
		if setA[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
