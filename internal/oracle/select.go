package oracle

// Select returns the admissible quotes: those newer than the window threshold, limited to
// the MaxQuotes most recent ones. Input order is preserved in the result.
//
// quotes must be ordered by non-decreasing height. The scan starts at the newest quote and
// stops at the first one that is too old or once MaxQuotes are taken, so the cost is bounded
// by MaxQuotes rather than by the feed length.
func Select(quotes []Quote, w Window) []Quote {
	threshold := w.Threshold()

	start := len(quotes)
	for start > 0 && uint64(len(quotes)-start) < w.MaxQuotes {
		if quotes[start-1].BlockHeight <= threshold {
			break
		}
		start--
	}

	selected := make([]Quote, len(quotes)-start)
	copy(selected, quotes[start:])
	return selected
}
