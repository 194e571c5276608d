// Package pairwise turns ranked test results into winner/loser observations.
package pairwise

import (
	"iter"
	"slices"
	"sort"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
)

// Expand yields every (winner, loser) pair of a group: the placement with the smaller
// rank wins. Placements are stably sorted by rank and pairs follow the double loop
// i < j over that order. The sequence can be ranged over repeatedly.
func Expand(group models.RankedOutcomeGroup) iter.Seq[models.PairwiseObservation] {
	placements := slices.Clone(group.Placements)
	sort.SliceStable(placements, func(i, j int) bool { return placements[i].Rank < placements[j].Rank })

	return func(yield func(models.PairwiseObservation) bool) {
		for i := 0; i < len(placements)-1; i++ {
			winner := placements[i]
			for j := i + 1; j < len(placements); j++ {
				loser := placements[j]
				obs := models.PairwiseObservation{
					TestID:     group.TestID,
					WinnerID:   winner.ProductID,
					WinnerName: winner.Name,
					LoserID:    loser.ProductID,
					LoserName:  loser.Name,
					Date:       group.Date,
					Location:   group.Location,
					Features:   group.Conditions,
				}
				if !yield(obs) {
					return
				}
			}
		}
	}
}

// PairCount is the number of observations Expand yields for a group of k placements.
func PairCount(k int) int {
	if k < 2 {
		return 0
	}
	return k * (k - 1) / 2
}

// BuildGroups joins normalized tests with their results and product names.
// Results referencing unknown tests or products are skipped, as in an inner join.
// Groups are returned in ascending test id order.
func BuildGroups(tests []normalize.NormalizedRecord, results []models.TestResult, products []models.Product) []models.RankedOutcomeGroup {
	names := make(map[models.ProductID]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	byTest := make(map[int64]*models.RankedOutcomeGroup, len(tests))
	order := make([]int64, 0, len(tests))
	for _, t := range tests {
		if _, seen := byTest[t.TestID]; seen {
			continue
		}
		byTest[t.TestID] = &models.RankedOutcomeGroup{
			TestID:     t.TestID,
			Date:       t.Date,
			Location:   t.Location,
			Conditions: t.Features,
		}
		order = append(order, t.TestID)
	}

	for _, r := range results {
		group, ok := byTest[r.TestID]
		if !ok {
			continue
		}
		name, ok := names[r.ProductID]
		if !ok {
			continue
		}
		group.Placements = append(group.Placements, models.Placement{ProductID: r.ProductID, Name: name, Rank: r.Rank})
	}

	slices.Sort(order)
	out := make([]models.RankedOutcomeGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *byTest[id])
	}
	return out
}

// Collect concatenates the expansions of groups into a dataset over schema.
func Collect(schema *models.FeatureSchema, groups []models.RankedOutcomeGroup) models.Dataset {
	total := 0
	for _, g := range groups {
		total += PairCount(len(g.Placements))
	}
	ds := models.Dataset{Schema: schema, Pairs: make([]models.PairwiseObservation, 0, total)}
	for _, g := range groups {
		for obs := range Expand(g) {
			ds.Pairs = append(ds.Pairs, obs)
		}
	}
	return ds
}

// TiedRanks reports test groups containing duplicate ranks.
func TiedRanks(groups []models.RankedOutcomeGroup) []int64 {
	var tied []int64
	for _, g := range groups {
		seen := make(map[int]bool, len(g.Placements))
		for _, p := range g.Placements {
			if seen[p.Rank] {
				tied = append(tied, g.TestID)
				break
			}
			seen[p.Rank] = true
		}
	}
	return tied
}
