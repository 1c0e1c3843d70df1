package hashing

import "math"

// dct1D computes the orthonormal DCT-II of x:
//
//	Y[k] = sqrt(2/N) * c(k) * sum x[n]*cos(pi*(2n+1)*k/(2N)), c(0)=1/sqrt(2)
func dct1D(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	scale := math.Sqrt(2 / float64(n))
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += x[i] * math.Cos(math.Pi*float64(2*i+1)*float64(k)/float64(2*n))
		}
		c := 1.0
		if k == 0 {
			c = 1 / math.Sqrt2
		}
		out[k] = scale * c * sum
	}
	return out
}

// dct2D applies the separable 2D DCT-II: 1D transforms over rows, transpose,
// 1D transforms over rows again, transpose back.
func dct2D(m [][]float64) [][]float64 {
	rows := make([][]float64, len(m))
	for i, row := range m {
		rows[i] = dct1D(row)
	}
	t := transpose(rows)
	for i, row := range t {
		t[i] = dct1D(row)
	}
	return transpose(t)
}

func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([][]float64, len(m[0]))
	for i := range out {
		out[i] = make([]float64, len(m))
		for j := range m {
			out[i][j] = m[j][i]
		}
	}
	return out
}
