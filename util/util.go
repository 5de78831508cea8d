// Package util contains misc internal utilities.
package util

// ClampInt limits a value to the range [low, high]
func ClampInt(input, low, high int) int {
	if input < low {
		return low
	} else if input > high {
		return high
	}
	return input
}
