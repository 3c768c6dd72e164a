package rounds

const (
	// BonusEvery is the tap interval that earns the bonus.
	BonusEvery = 11
	// BonusPoints is awarded for every BonusEvery-th cumulative tap.
	BonusPoints = 10
	// TapPoints is awarded for every other tap.
	TapPoints = 1

	// MaxTapCount bounds a participant's tap count so scores and round totals stay far
	// inside int64.
	MaxTapCount int64 = 1 << 40
)

// ScoreForTaps returns the cumulative score for a participant with n taps:
// every 11th tap is worth 10 points, every other tap 1 point.
func ScoreForTaps(n int64) int64 {
	if n <= 0 {
		return 0
	}
	bonusTaps := n / BonusEvery
	return (n-bonusTaps)*TapPoints + bonusTaps*BonusPoints
}

// ScoreDelta returns the points earned by the taps in (oldCount, newCount].
// It is derived from absolute counts so repeated reports never drift.
func ScoreDelta(oldCount, newCount int64) int64 {
	if newCount <= oldCount {
		return 0
	}
	return ScoreForTaps(newCount) - ScoreForTaps(oldCount)
}
