package ocr

// MeanPercent averages engine confidences reported on a 0-100 scale and
// returns the mean in [0,1]. An empty slice scores zero.
func MeanPercent(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += min(max(s, 0), 100)
	}
	return sum / float64(len(scores)) / 100
}
