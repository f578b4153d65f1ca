// Package progress estimates how far along a paginated export is from the
// per-page record counts seen so far. The API never reports a total, so this
// is a bounded heuristic for observability only.
package progress

const (
	// minPages is the minimum history before an estimate is attempted.
	minPages = 2
	// recentSample is how many trailing pages feed the trend detection.
	recentSample = 3
	// maxWhileRemaining caps the estimate while more pages remain, so the
	// log never claims near-completion that the next page could contradict.
	maxWhileRemaining = 95
)

// Estimate returns a completion percentage in [0,100] given the per-page
// counts observed so far. ok is false when fewer than minPages pages have
// been seen and no estimate is possible; callers should render that as
// "estimating" rather than 0%.
func Estimate(history []int, totalSoFar int, morePagesRemaining bool) (percent int, ok bool) {
	if !morePagesRemaining {
		return 100, true
	}
	if len(history) < minPages {
		return 0, false
	}

	remaining := estimateRemaining(history)
	estimatedTotal := totalSoFar + remaining
	if estimatedTotal <= 0 {
		return 0, true
	}

	percent = totalSoFar * 100 / estimatedTotal
	if percent > maxWhileRemaining {
		percent = maxWhileRemaining
	}
	return percent, true
}

// estimateRemaining projects how many records are still unfetched. When the
// trailing pages shrink well below the overall average the export is likely
// near its end; otherwise project two more average-sized pages.
func estimateRemaining(history []int) int {
	total := 0
	for _, n := range history {
		total += n
	}
	overallAvg := float64(total) / float64(len(history))

	recent := history
	if len(recent) > recentSample {
		recent = recent[len(recent)-recentSample:]
	}
	recentTotal := 0
	nonZeroRecent := 0
	for _, n := range recent {
		recentTotal += n
		if n > 0 {
			nonZeroRecent++
		}
	}
	recentAvg := float64(recentTotal) / float64(len(recent))

	if trendingDown(recentAvg, overallAvg, len(history)) {
		return int(recentAvg * float64(1+nonZeroRecent))
	}
	return int(overallAvg * 2)
}

func trendingDown(recentAvg, overallAvg float64, totalPages int) bool {
	return recentAvg < overallAvg*0.5 && totalPages > 3
}
