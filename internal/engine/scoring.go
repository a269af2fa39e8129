package engine

import "math"

// Calculate returns the points for one answer. Wrong answers score 0; a
// correct answer earns baseScore plus a speed bonus that shrinks linearly
// from speedBonusMax (answered instantly) to 0 (time fully elapsed).
func Calculate(isCorrect bool, timeLeftMs, timeLimitMs, baseScore, speedBonusMax int) int {
	if !isCorrect {
		return 0
	}
	if timeLimitMs <= 0 {
		return baseScore
	}
	if timeLeftMs < 0 {
		timeLeftMs = 0
	}
	if timeLeftMs > timeLimitMs {
		timeLeftMs = timeLimitMs
	}
	bonus := math.Round(float64(speedBonusMax) * float64(timeLeftMs) / float64(timeLimitMs))
	return baseScore + int(bonus)
}
