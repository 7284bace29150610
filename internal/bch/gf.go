// Package bch implements a binary BCH(127,64,t=10) code over GF(2^7)
// (C2): encode(msg) -> codeword, decode(noisy) -> (msg, errors|failure).
//
// The generator polynomial is derived at package initialization from
// the field's cyclotomic cosets rather than hardcoded, so the
// construction documents itself: any reviewer can see the (n,k,t)
// parameters are a consequence of the minimal-polynomial product for
// roots alpha^1..alpha^2t, not a magic constant.
package bch

// Field parameters for GF(2^7): 127 nonzero elements, primitive
// polynomial x^7+x^3+1 (0x89, with bit 7 marking the x^7 term).
const (
	fieldM   = 7
	fieldN   = 127 // 2^fieldM - 1
	primPoly = 0x89
)

var (
	gfExp [fieldN]int // gfExp[i] = alpha^i, i in [0, fieldN)
	gfLog [fieldN + 1]int // gfLog[x] = i such that alpha^i = x, x in [1, fieldN]
)

func init() {
	x := 1
	for i := 0; i < fieldN; i++ {
		gfExp[i] = x
		gfLog[x] = i
		x <<= 1
		if x&0x80 != 0 {
			x ^= primPoly
		}
	}
}

// gfMul multiplies two field elements (vector representation, 0..127).
func gfMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	s := gfLog[a] + gfLog[b]
	if s >= fieldN {
		s -= fieldN
	}
	return gfExp[s]
}

// gfInv returns the multiplicative inverse of a nonzero field element.
func gfInv(a int) int {
	if a == 0 {
		panic("bch: inverse of zero field element")
	}
	return gfExp[(fieldN-gfLog[a])%fieldN]
}

// gfDiv divides a by b (b must be nonzero).
func gfDiv(a, b int) int {
	return gfMul(a, gfInv(b))
}

// gfPow returns alpha^(e) for any integer exponent e (may be negative).
func gfPow(e int) int {
	e %= fieldN
	if e < 0 {
		e += fieldN
	}
	return gfExp[e]
}

// gfPoly is a polynomial over GF(2^7), coefficients low-degree first.
// Coefficients are field elements in vector representation (0..127);
// addition in this field is XOR.
type gfPoly []int

// polyMul multiplies two GF(2^7) polynomials.
func polyMul(a, b gfPoly) gfPoly {
	if len(a) == 0 || len(b) == 0 {
		return gfPoly{}
	}
	res := make(gfPoly, len(a)+len(b)-1)
	for i, ai := range a {
		if ai == 0 {
			continue
		}
		for j, bj := range b {
			if bj == 0 {
				continue
			}
			res[i+j] ^= gfMul(ai, bj)
		}
	}
	return res
}

// polyEval evaluates p(x) at x=point using Horner's method.
func polyEval(p gfPoly, point int) int {
	if len(p) == 0 {
		return 0
	}
	result := p[len(p)-1]
	for i := len(p) - 2; i >= 0; i-- {
		result = gfMul(result, point) ^ p[i]
	}
	return result
}

// degree returns the degree of p, ignoring trailing zero coefficients.
// Returns -1 for the zero polynomial.
func degree(p gfPoly) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			return i
		}
	}
	return -1
}

// cosetOf returns the cyclotomic coset of i modulo fieldN under
// repeated doubling: {i, 2i, 4i, ...} mod fieldN.
func cosetOf(i int) []int {
	seen := make(map[int]bool)
	cur := i % fieldN
	var out []int
	for !seen[cur] {
		seen[cur] = true
		out = append(out, cur)
		cur = (cur * 2) % fieldN
	}
	return out
}

// minimalPoly computes the minimal polynomial over GF(2) (represented
// with GF(2^7) coefficients that must reduce to 0/1) of alpha^e for
// every e in coset: the product of (x + alpha^e) over the coset.
func minimalPoly(coset []int) gfPoly {
	poly := gfPoly{1}
	for _, e := range coset {
		root := gfExp[e]
		factor := gfPoly{root, 1} // x + alpha^e
		poly = polyMul(poly, factor)
	}
	return poly
}
