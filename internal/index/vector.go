package index

// SquaredL2 computes the squared Euclidean distance between two vectors of
// equal length.
func SquaredL2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrVectorLengthMismatch
	}
	var sum float64
	for i := 0; i < len(a); i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum, nil
}
