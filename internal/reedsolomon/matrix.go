package reedsolomon

import (
	"errors"
	"sort"

	"github.com/par2lab/par2verify/internal/gf"
)

// ErrSingularMatrix is returned when the chosen recovery slices do not
// yield an invertible Vandermonde sub-matrix for the missing slice set.
// Over GF(2^16) with distinct exponents this should not occur in
// practice, but malformed or adversarial recovery data can still trigger
// it (e.g. duplicate exponents smuggled past [par2.AssembleSet]).
var ErrSingularMatrix = errors.New("singular reconstruction matrix")

// pickExponents selects n distinct recovery-slice exponents out of
// available, in ascending order for determinism. Any n exponents work
// mathematically; the PAR2 Vandermonde construction guarantees any square
// sub-matrix of distinct rows/columns is invertible.
func pickExponents(available []uint32, n int) []uint32 {
	chosen := append([]uint32(nil), available...)
	sort.Slice(chosen, func(i, j int) bool { return chosen[i] < chosen[j] })

	return chosen[:n]
}

// presentIndices returns every slice index in [0,total) not present in missing.
func presentIndices(total int, missing []int) []int {
	isMissing := make(map[int]struct{}, len(missing))
	for _, idx := range missing {
		isMissing[idx] = struct{}{}
	}

	present := make([]int, 0, total-len(missing))
	for i := range total {
		if _, ok := isMissing[i]; !ok {
			present = append(present, i)
		}
	}

	return present
}

// buildVandermonde constructs the M-by-M coefficient sub-matrix relating
// the chosen recovery-slice exponents (rows) to the missing data-slice
// indices (columns): matrix[row][col] = g^(exponent[row]*index[col]) in
// GF(2^16), via [gf.Coefficient].
func buildVandermonde(exponents []uint32, missing []int) [][]uint16 {
	matrix := make([][]uint16, len(exponents))
	for row, exp := range exponents {
		matrix[row] = make([]uint16, len(missing))
		for col, idx := range missing {
			matrix[row][col] = gf.Coefficient(int64(exp), int64(idx))
		}
	}

	return matrix
}

// invert computes the inverse of a square GF(2^16) matrix via Gauss-Jordan
// elimination. Pivoting picks the first nonzero entry in the column rather
// than a largest-magnitude entry, since GF(2^16) elements have no
// meaningful magnitude ordering for numerical stability purposes.
func invert(m [][]uint16) ([][]uint16, error) {
	n := len(m)
	aug := make([][]uint16, n)

	for i := range aug {
		row := make([]uint16, 2*n)
		copy(row, m[i])
		row[n+i] = 1
		aug[i] = row
	}

	for col := range n {
		pivot := -1

		for row := col; row < n; row++ {
			if aug[row][col] != 0 {
				pivot = row

				break
			}
		}

		if pivot == -1 {
			return nil, ErrSingularMatrix
		}

		aug[col], aug[pivot] = aug[pivot], aug[col]

		inv := gf.Inverse(aug[col][col])
		for k := range 2 * n {
			aug[col][k] = gf.Mul(aug[col][k], inv)
		}

		for row := range n {
			if row == col || aug[row][col] == 0 {
				continue
			}

			factor := aug[row][col]
			for k := range 2 * n {
				aug[row][k] ^= gf.Mul(factor, aug[col][k])
			}
		}
	}

	result := make([][]uint16, n)
	for i := range result {
		result[i] = aug[i][n:]
	}

	return result, nil
}
