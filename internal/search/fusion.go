package search

import (
	"sort"
)

// normalizeScores rescales one path's raw scores into [0,1] in place.
// A single hit, or a path where every hit scored the same, maps to 1.0 so
// that lone results from different paths compare as equals.
func normalizeScores(results []Result) {
	if len(results) == 0 {
		return
	}
	min, max := results[0].RawScore, results[0].RawScore
	for i := 1; i < len(results); i++ {
		if results[i].RawScore < min {
			min = results[i].RawScore
		}
		if results[i].RawScore > max {
			max = results[i].RawScore
		}
	}
	span := max - min
	for i := range results {
		if span == 0 {
			results[i].NormalizedScore = 1.0
			continue
		}
		results[i].NormalizedScore = (results[i].RawScore - min) / span
	}
}

// fuse interleaves normalized per-path result lists into one order:
// normalized score descending, then source priority, then the position the
// path itself returned. Equal inputs always produce equal output order.
func fuse(priority []string, paths ...[]Result) []Result {
	type ranked struct {
		Result
		pathPos int
	}
	total := 0
	for _, path := range paths {
		total += len(path)
	}
	all := make([]ranked, 0, total)
	for _, path := range paths {
		for i, r := range path {
			all = append(all, ranked{Result: r, pathPos: i})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].NormalizedScore != all[j].NormalizedScore {
			return all[i].NormalizedScore > all[j].NormalizedScore
		}
		ri, rj := sourceRank(priority, all[i].Source), sourceRank(priority, all[j].Source)
		if ri != rj {
			return ri < rj
		}
		return all[i].pathPos < all[j].pathPos
	})
	fused := make([]Result, len(all))
	for i, r := range all {
		fused[i] = r.Result
	}
	return fused
}

// sourceRank returns the position of source in the priority list. Unlisted
// sources sort after every listed one.
func sourceRank(priority []string, source string) int {
	for i, p := range priority {
		if p == source {
			return i
		}
	}
	return len(priority)
}

