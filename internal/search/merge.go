package search

import (
	"slices"

	"github.com/DeafMist/stat-radar/backend/internal/models"
)

// mergeVariables flattens per-place results in place order. The first
// occurrence of a dcid wins; later ones only add to its PlacesWithData.
// Bilateral variables are dropped unless includeBilateral is set.
func mergeVariables(perPlace [][]models.Variable, includeBilateral bool) []models.Variable {
	out := []models.Variable{}
	pos := make(map[string]int)

	for _, vars := range perPlace {
		for _, v := range vars {
			if v.Bilateral && !includeBilateral {
				continue
			}
			if i, ok := pos[v.DCID]; ok {
				for _, p := range v.PlacesWithData {
					if !slices.Contains(out[i].PlacesWithData, p) {
						out[i].PlacesWithData = append(out[i].PlacesWithData, p)
					}
				}
				continue
			}
			v.PlacesWithData = slices.Clone(v.PlacesWithData)
			v.Topics = slices.Clone(v.Topics)
			pos[v.DCID] = len(out)
			out = append(out, v)
		}
	}
	return out
}

func dedupeTopics(topics []models.Topic) []models.Topic {
	out := make([]models.Topic, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if _, ok := seen[t.DCID]; ok {
			continue
		}
		seen[t.DCID] = struct{}{}
		out = append(out, t)
	}
	return out
}
