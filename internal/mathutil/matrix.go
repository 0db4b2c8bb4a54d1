package mathutil

// Vec is a float64 vector.
type Vec = []float64

// Mat is a 2D float64 matrix stored as row-major [][]float64.
type Mat = [][]float64

// NewMat creates a rows x cols matrix initialized to zero.
func NewMat(rows, cols int) Mat {
	m := make(Mat, rows)
	data := make([]float64, rows*cols)
	for i := range m {
		m[i] = data[i*cols : (i+1)*cols]
	}
	return m
}

// NewMatFill creates a rows x cols matrix filled with val.
func NewMatFill(rows, cols int, val float64) Mat {
	m := NewMat(rows, cols)
	for i := range m {
		for j := range m[i] {
			m[i][j] = val
		}
	}
	return m
}

// IsSquare reports whether m has as many columns in every row as it has rows.
func IsSquare(m Mat) bool {
	for _, row := range m {
		if len(row) != len(m) {
			return false
		}
	}
	return true
}

// CloneMat returns a deep copy of m.
func CloneMat(m Mat) Mat {
	if m == nil {
		return nil
	}
	out := make(Mat, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// MatVec returns a·x + b. A nil a is treated as the identity and a nil b as
// the zero vector, so MatVec(nil, x, nil) is a copy of x.
func MatVec(a Mat, x, b Vec) Vec {
	out := make(Vec, len(x))
	if a == nil {
		copy(out, x)
	} else {
		for i, row := range a {
			sum := 0.0
			for j, v := range row {
				sum += v * x[j]
			}
			out[i] = sum
		}
	}
	if b != nil {
		for i := range out {
			out[i] += b[i]
		}
	}
	return out
}

// WeightedSqDist computes sum((x[i]-mean[i])^2 * w[i]) over the length of mean.
func WeightedSqDist(x, mean, w Vec) float64 {
	acc := 0.0
	for i, m := range mean {
		diff := x[i] - m
		acc += diff * diff * w[i]
	}
	return acc
}

// NewVecFill creates a vector of length n filled with val.
func NewVecFill(n int, val float64) Vec {
	v := make(Vec, n)
	for i := range v {
		v[i] = val
	}
	return v
}
