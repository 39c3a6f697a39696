// Package rank applies the ignore/avoid/prefer filter algebra to a scan
// pass and selects the single best kill candidate.
package rank

import (
	"github.com/quietmem/oomsentinel/pkg/config"
	"github.com/quietmem/oomsentinel/pkg/procscan"
)

// preferBiasScore and sanityFloorRSSKiB implement spec §4.4 steps 3 and 5.
const (
	preferBiasScore   = 1000
	sanityFloorRSSKiB = 1024 // 1 MiB: below this, pressure is cache/kernel-resident, not user-attributable
)

type scoredRecord struct {
	rec   procscan.ProcessRecord
	score float64
}

// Select applies the ignore/avoid/prefer algebra to records and returns the
// single best kill candidate, or ok=false if nothing clears the ignore/root
// drop rules or the sanity floor (spec §4.4).
func Select(records []procscan.ProcessRecord, filters config.Filters, sortMode config.SortMode, ignoreRootUser bool) (procscan.ProcessRecord, bool) {
	candidates := make([]scoredRecord, 0, len(records))
	for _, rec := range records {
		if config.MatchAny(filters.Ignore, rec.Name) {
			continue
		}
		if ignoreRootUser && rec.UID == 0 {
			continue
		}
		candidates = append(candidates, scoredRecord{rec: rec, score: adjustedScore(rec, filters, sortMode)})
	}
	if len(candidates) == 0 {
		return procscan.ProcessRecord{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if betterCandidate(c, best) {
			best = c
		}
	}

	if belowSanityFloor(best.rec, sortMode) {
		return procscan.ProcessRecord{}, false
	}
	return best.rec, true
}

func adjustedScore(rec procscan.ProcessRecord, filters config.Filters, sortMode config.SortMode) float64 {
	var base, bias float64
	if sortMode == config.SortByRSS {
		base = float64(rec.RSSKiB)
		bias = base * 2
	} else {
		base = float64(rec.OOMScore)
		bias = preferBiasScore
	}

	score := base
	if config.MatchAny(filters.Prefer, rec.Name) {
		score += bias
	}
	if config.MatchAny(filters.Avoid, rec.Name) {
		score -= bias
	}
	return score
}

// betterCandidate reports whether b is strictly preferable to a: higher
// adjusted score, then higher raw RSS, then larger PID (spec §4.4 step 4).
func betterCandidate(b, a scoredRecord) bool {
	if b.score != a.score {
		return b.score > a.score
	}
	if b.rec.RSSKiB != a.rec.RSSKiB {
		return b.rec.RSSKiB > a.rec.RSSKiB
	}
	return b.rec.PID > a.rec.PID
}

func belowSanityFloor(rec procscan.ProcessRecord, sortMode config.SortMode) bool {
	if sortMode == config.SortByRSS {
		return rec.RSSKiB <= sanityFloorRSSKiB
	}
	return false
}
