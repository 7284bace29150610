package bch

import (
	"math/big"

	"github.com/fractionestate/decentralized-did/internal/bioerr"
)

// Code dimensions (C2, spec §4.2).
const (
	N = 127 // codeword length, bits
	K = 64  // message length, bits
	T = 10  // guaranteed-correctable errors
)

// Msg is a 64-bit message block.
type Msg = uint64

// Codeword is a 127-bit BCH codeword, bit i (0-indexed from the low
// end) stored at byte i/8, bit i%8 of the backing array. Only the low
// 127 of the 128 available bits are meaningful.
type Codeword [16]byte

var generator *big.Int // GF(2) polynomial, degree N-K = 63

func init() {
	twoT := 2 * T
	used := make(map[int]bool)
	gen := gfPoly{1}
	for e := 1; e <= twoT; e++ {
		if used[e] {
			continue
		}
		coset := cosetOf(e)
		for _, c := range coset {
			used[c] = true
		}
		gen = polyMul(gen, minimalPoly(coset))
	}

	g := new(big.Int)
	for i, c := range gen {
		if c != 0 && c != 1 {
			panic("bch: generator polynomial has a non-binary coefficient; field tables are inconsistent")
		}
		if c == 1 {
			g.SetBit(g, i, 1)
		}
	}

	if degree(gen) != N-K {
		panic("bch: generator degree does not match the configured (n,k) parameters")
	}

	generator = g
}

// polyModGF2 computes dividend mod divisor over GF(2), where bit i of
// each big.Int represents the coefficient of x^i.
func polyModGF2(dividend, divisor *big.Int) *big.Int {
	divisorDeg := divisor.BitLen() - 1
	rem := new(big.Int).Set(dividend)
	for rem.BitLen()-1 >= divisorDeg {
		shift := uint(rem.BitLen() - 1 - divisorDeg)
		shifted := new(big.Int).Lsh(divisor, shift)
		rem.Xor(rem, shifted)
	}
	return rem
}

// Encode produces the systematic BCH codeword for a 64-bit message:
// c(x) = x^(n-k)*m(x) + (x^(n-k)*m(x) mod g(x)).
func Encode(msg Msg) Codeword {
	m := new(big.Int).SetUint64(uint64(msg))
	shifted := new(big.Int).Lsh(m, N-K)
	remainder := polyModGF2(shifted, generator)
	codeword := new(big.Int).Xor(shifted, remainder)
	return bigIntToCodeword(codeword)
}

func bigIntToCodeword(v *big.Int) Codeword {
	var cw Codeword
	b := v.Bytes() // big-endian, shortest form
	for i, by := range b {
		// b is big-endian; byte index from the end maps to low bits.
		cw[len(b)-1-i] = by
	}
	return cw
}

func codewordToBigInt(cw Codeword) *big.Int {
	// Find the highest nonzero byte within the 127-bit window (bit 127
	// of the array, byte 15 bit 7, is never set by a valid codeword).
	var be [16]byte
	for i := 0; i < 16; i++ {
		be[15-i] = cw[i]
	}
	v := new(big.Int).SetBytes(be[:])
	// Mask to 127 bits defensively.
	v.And(v, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), N), big.NewInt(1)))
	return v
}

// FailureKind enumerates non-success outcomes of Decode.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureUncorrectable
)

// Decode corrects up to T bit errors in a noisy codeword and recovers
// the original 64-bit message. On success errorsCorrected reports how
// many bit positions were flipped (0 if the codeword was already
// clean). If more than T errors are present, Decode returns
// bioerr.ErrUncorrectableErrors; its runtime does not depend on which
// bits were in error, only on n and t (§4.2's side-channel discipline),
// since every path below always runs Berlekamp-Massey for the full 2T
// syndromes and a full Chien search over all N positions.
func Decode(noisy Codeword) (msg Msg, errorsCorrected int, err error) {
	received := codewordToBigInt(noisy)

	syndromes := computeSyndromes(received)
	locator := berlekampMassey(syndromes)
	errorPositions, ok := chienSearch(locator)
	if !ok || len(errorPositions) > T {
		return 0, 0, bioerr.ErrUncorrectableErrors
	}

	corrected := new(big.Int).Set(received)
	for _, pos := range errorPositions {
		corrected.SetBit(corrected, pos, 1^corrected.Bit(pos))
	}

	// Verify the correction actually produces a codeword (all 2T
	// syndromes vanish); if not, the error pattern exceeded what this
	// (n,k,t) code can guarantee and correction is unreliable.
	if !allZero(computeSyndromes(corrected)) {
		return 0, 0, bioerr.ErrUncorrectableErrors
	}

	return extractMessage(corrected), len(errorPositions), nil
}

func extractMessage(codewordVal *big.Int) Msg {
	shifted := new(big.Int).Rsh(codewordVal, N-K)
	return Msg(shifted.Uint64())
}

// computeSyndromes returns S_1..S_2T for the received polynomial,
// S_i = r(alpha^i), evaluated in GF(2^7).
func computeSyndromes(received *big.Int) []int {
	syn := make([]int, 2*T)
	for i := 1; i <= 2*T; i++ {
		point := gfPow(i)
		syn[i-1] = evalBinaryPolyAt(received, point)
	}
	return syn
}

// evalBinaryPolyAt evaluates a GF(2)-coefficient polynomial (bit i of v
// is the coefficient of x^i) at a GF(2^7) field element using Horner's
// method.
func evalBinaryPolyAt(v *big.Int, point int) int {
	deg := v.BitLen() - 1
	if deg < 0 {
		return 0
	}
	result := 0
	if v.Bit(deg) == 1 {
		result = 1
	}
	for i := deg - 1; i >= 0; i-- {
		result = gfMul(result, point)
		if v.Bit(i) == 1 {
			result ^= 1
		}
	}
	return result
}

func allZero(syn []int) bool {
	for _, s := range syn {
		if s != 0 {
			return false
		}
	}
	return true
}

// berlekampMassey computes the error locator polynomial from the
// syndrome sequence S_1..S_2T using the Berlekamp-Massey algorithm over
// GF(2^7).
func berlekampMassey(syn []int) gfPoly {
	c := gfPoly{1}
	b := gfPoly{1}
	l := 0
	m := 1
	bCoeff := 1

	for n := 0; n < len(syn); n++ {
		delta := syn[n]
		for i := 1; i <= l; i++ {
			if i < len(c) && n-i >= 0 {
				delta ^= gfMul(c[i], syn[n-i])
			}
		}

		if delta == 0 {
			m++
			continue
		}

		t := make(gfPoly, len(c))
		copy(t, c)

		coef := gfDiv(delta, bCoeff)
		shifted := shiftPoly(b, m)
		c = polyAddScaled(c, shifted, coef)

		if 2*l <= n {
			l = n + 1 - l
			b = t
			bCoeff = delta
			m = 1
		} else {
			m++
		}
	}

	return c
}

// shiftPoly returns p shifted up by m degrees (multiplied by x^m).
func shiftPoly(p gfPoly, m int) gfPoly {
	res := make(gfPoly, len(p)+m)
	copy(res[m:], p)
	return res
}

// polyAddScaled returns a XOR (coef * b), extending a as needed.
func polyAddScaled(a, b gfPoly, coef int) gfPoly {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	res := make(gfPoly, n)
	copy(res, a)
	for i, bi := range b {
		if bi == 0 {
			continue
		}
		res[i] ^= gfMul(coef, bi)
	}
	return res
}

// chienSearch finds the roots of the error locator polynomial by
// exhaustive evaluation over all N nonzero field elements (Chien
// search). A root at alpha^(-i) indicates an error at bit position i.
// ok is false if the locator's degree does not match its root count,
// signaling more errors than the code can identify reliably.
func chienSearch(locator gfPoly) (positions []int, ok bool) {
	deg := degree(locator)

	for i := 0; i < N; i++ {
		point := gfPow(-i)
		if polyEval(locator, point) == 0 {
			positions = append(positions, i)
		}
	}

	if deg <= 0 {
		return nil, deg == 0
	}
	return positions, len(positions) == deg
}

// BlockParity is an optional per-block parity helper record that can
// recover a small number of bit flips beyond T (spec §4.2: "quality of
// service extension, not a security weakening — it operates on the
// same public helper material").
type BlockParity struct {
	BlockSize int
	Parities  []byte // one parity byte (XOR of the block's bytes) per block
}

// ComputeBlockParity derives the parity helper for a codeword, dividing
// it into blockSize-byte blocks (the last block may be shorter).
func ComputeBlockParity(cw Codeword, blockSize int) BlockParity {
	var parities []byte
	for start := 0; start < 16; start += blockSize {
		end := start + blockSize
		if end > 16 {
			end = 16
		}
		var p byte
		for _, b := range cw[start:end] {
			p ^= b
		}
		parities = append(parities, p)
	}
	return BlockParity{BlockSize: blockSize, Parities: parities}
}

// DecodeWithParity attempts Decode; on FailureUncorrectable it consults
// the parity helper to try single-bit flips within blocks whose
// parity doesn't match, then retries Decode on each candidate. It
// returns the first candidate that decodes successfully.
func DecodeWithParity(noisy Codeword, parity BlockParity) (Msg, int, error) {
	if msg, corrected, err := Decode(noisy); err == nil {
		return msg, corrected, nil
	}

	recomputed := ComputeBlockParity(noisy, parity.BlockSize)
	for blockIdx, want := range parity.Parities {
		if blockIdx >= len(recomputed.Parities) {
			break
		}
		if recomputed.Parities[blockIdx] == want {
			continue
		}

		start := blockIdx * parity.BlockSize
		end := start + parity.BlockSize
		if end > 16 {
			end = 16
		}
		for pos := start; pos < end; pos++ {
			candidate := noisy
			for bit := 0; bit < 8; bit++ {
				flipped := candidate
				flipped[pos] ^= 1 << uint(bit)
				if msg, corrected, err := Decode(flipped); err == nil {
					return msg, corrected + 1, nil
				}
			}
		}
	}

	return 0, 0, bioerr.ErrUncorrectableErrors
}
