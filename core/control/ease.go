package control

import "math"

// EaseOutQuad maps x in [0, 1] to 1-(1-x)^2. Inputs are clamped.
func EaseOutQuad(x float64) float64 {
	x = clamp01(x)
	return 1 - (1-x)*(1-x)
}

// EaseOutExp maps x in [0, 1] to 1-2^(-10x). Inputs are clamped.
func EaseOutExp(x float64) float64 {
	return 1 - math.Pow(2, -10*clamp01(x))
}

// WrapAngle maps a into (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
