// Package binomial computes the survival function of a Binomial(n, p)
// distribution in BigExpFloat space, for tail probabilities far below
// float64's underflow threshold.
package binomial

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/trevor-schnegg/skim-go/internal/bigexpfloat"
)

// Consts precomputes log2(k!) for k in [0, maxN], so that a binomial
// coefficient can be evaluated without repeated calls to math.Lgamma on the
// classification hot path.
type Consts struct {
	log2Factorial []float64
}

// NewConsts builds the log-factorial table in O(maxN).
func NewConsts(maxN int) *Consts {
	table := make([]float64, maxN+1)
	for k := 1; k <= maxN; k++ {
		table[k] = table[k-1] + math.Log2(float64(k))
	}
	return &Consts{log2Factorial: table}
}

// Log2Binomial returns log2(C(n, k)).
func (c *Consts) Log2Binomial(n, k int) float64 {
	return c.log2Factorial[n] - c.log2Factorial[k] - c.log2Factorial[n-k]
}

// SF computes P[X >= x] for X ~ Binomial(n, p), carried out entirely in
// BigExpFloat space. Terms are summed from k = n down to x, so the result
// never increases with x, and the total is capped at 1.
func SF(p float64, n, x int, consts *Consts) bigexpfloat.BigExpFloat {
	if x == 0 {
		return bigexpfloat.One()
	}
	if x > n {
		return bigexpfloat.Zero()
	}

	pBig := bigexpfloat.FromF64(p)
	qBig := bigexpfloat.FromF64(1 - p)

	sum := bigexpfloat.Zero()
	for k := n; k >= x; k-- {
		term := bigexpfloat.FromLog2(consts.Log2Binomial(n, k))
		term = term.Mul(pBig.Powf(float64(k)))
		term = term.Mul(qBig.Powf(float64(n - k)))
		sum = sum.Add(term)
	}
	// Rounding in the log-space terms can push the total slightly above 1.
	if one := bigexpfloat.One(); one.Less(sum) {
		return one
	}
	return sum
}

// NativeSF computes P[X >= x] for X ~ Binomial(n, p) using gonum's
// double-precision implementation, expressed as 1 - CDF(x-1). It underflows
// to 0 for p and x combinations far in the tail; callers should fall back to
// SF when that happens.
func NativeSF(p float64, n, x int) float64 {
	if x == 0 {
		return 1
	}
	if x > n {
		return 0
	}
	dist := distuv.Binomial{N: float64(n), P: p}
	return 1 - dist.CDF(float64(x-1))
}
