package vector

// L2Squared returns the squared Euclidean distance between a and b, which must have equal length.
func L2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
