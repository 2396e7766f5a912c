// Package util provides common utility functions for monetary rounding.
package util

import "math"

// RoundTo rounds x to the given number of decimal places.
func RoundTo(x float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(x*pow) / pow
}

// Round2 rounds x to two decimal places, the precision used for charges and
// tax amounts throughout the pipeline.
func Round2(x float64) float64 {
	return RoundTo(x, 2)
}
