package engine

import "math"

// stepWeight advances one day of the cube-root thermal growth recurrence:
//
//	new = (cbrt(current) + coefficient*temp)^3
//
// For non-negative coefficient and temperature the result is monotonically
// non-decreasing by construction; no floor or ceiling is applied.
func stepWeight(weightGrams, coefficient, tempC float64) float64 {
	root := math.Cbrt(weightGrams) + coefficient*tempC
	return root * root * root
}
