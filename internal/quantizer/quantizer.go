// Package quantizer canonicalizes a per-finger minutiae list into a
// fixed-length bit template stable under bounded capture noise (C1).
//
// The grid/angle-bin discretization in Quantize is the only practical
// way to make two noisy captures of the same finger collapse to a
// bit-for-bit identical template; rotation/translation normalization
// removes global pose variation before discretization, which the
// downstream error-correcting code cannot otherwise absorb.
package quantizer

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/fractionestate/decentralized-did/internal/bioerr"
)

// NBits is the fixed template length (§3 of the spec).
const NBits = 512

// MinutiaType identifies the kind of ridge feature a minutia marks.
type MinutiaType uint8

const (
	RidgeEnding MinutiaType = iota
	Bifurcation
)

// Minutia is a single captured fingerprint feature point.
type Minutia struct {
	XUm      uint32
	YUm      uint32
	ThetaDeg uint16
	Type     MinutiaType
	Quality  uint8 // 0-100
}

// FingerID identifies which finger a template or helper belongs to.
type FingerID string

const (
	LeftThumb   FingerID = "left_thumb"
	LeftIndex   FingerID = "left_index"
	LeftMiddle  FingerID = "left_middle"
	LeftRing    FingerID = "left_ring"
	LeftLittle  FingerID = "left_little"
	RightThumb  FingerID = "right_thumb"
	RightIndex  FingerID = "right_index"
	RightMiddle FingerID = "right_middle"
	RightRing   FingerID = "right_ring"
	RightLittle FingerID = "right_little"
)

// ValidFingerID reports whether id is one of the ten recognized fingers.
func ValidFingerID(id FingerID) bool {
	switch id {
	case LeftThumb, LeftIndex, LeftMiddle, LeftRing, LeftLittle,
		RightThumb, RightIndex, RightMiddle, RightRing, RightLittle:
		return true
	default:
		return false
	}
}

// Params configures quantization. The recognized fields mirror §4.1 of
// the spec exactly; there is no hidden configuration surface.
type Params struct {
	GridUm               uint32
	AngleBins            uint8
	MinMinutiae          uint8
	QualityThreshold     uint8
	RotationNormalize    bool
	TranslationNormalize bool
}

// DefaultParams returns the recognized default configuration.
func DefaultParams() Params {
	return Params{
		GridUm:               50,
		AngleBins:            32,
		MinMinutiae:          20,
		QualityThreshold:     70,
		RotationNormalize:    true,
		TranslationNormalize: true,
	}
}

// Template is the fixed-length bit string produced for one finger,
// along with the finger it was derived from and an aggregate quality
// score (mean quality of the minutiae retained after filtering).
type Template struct {
	FingerID FingerID
	Bits     [NBits / 8]byte
	Quality  uint8
}

// canonicalTriple is a minutia reduced to its quantized coordinates.
type canonicalTriple struct {
	xq, yq, tq uint32
	typ        MinutiaType
	quality    uint8
}

// Quantize canonicalizes minutiae into a fixed-length template. It
// returns bioerr.ErrInsufficientMinutiae if fewer than
// params.MinMinutiae minutiae survive quality filtering.
func Quantize(minutiae []Minutia, fingerID FingerID, params Params) (Template, error) {
	kept := filterByQuality(minutiae, params.QualityThreshold)
	if len(kept) < int(params.MinMinutiae) {
		return Template{}, bioerr.ErrInsufficientMinutiae
	}

	xs, ys := positions(kept)

	if params.TranslationNormalize {
		cx, cy := centroid(xs, ys)
		translate(xs, ys, -cx, -cy)
	}

	if params.RotationNormalize {
		theta := principalAxisAngle(xs, ys)
		// Tie-break direction by requiring the first minutia's angle
		// to fall in [0,180) after rotation.
		firstAngle := math.Mod(float64(kept[0].ThetaDeg)-radToDeg(theta), 360)
		if firstAngle < 0 {
			firstAngle += 360
		}
		if firstAngle >= 180 {
			theta += math.Pi
		}
		rotate(xs, ys, -theta)
	}

	triples := make(map[[3]uint32]canonicalTriple, len(kept))
	for i, m := range kept {
		xq := uint32(math.Floor(xs[i] / float64(params.GridUm)))
		yq := uint32(math.Floor(ys[i] / float64(params.GridUm)))
		tq := uint32(math.Floor(float64(m.ThetaDeg)*float64(params.AngleBins)/360)) % uint32(params.AngleBins)

		key := [3]uint32{xq, yq, tq*2 + uint32(m.Type)}
		existing, ok := triples[key]
		if !ok || m.Quality > existing.quality {
			triples[key] = canonicalTriple{xq: xq, yq: yq, tq: tq, typ: m.Type, quality: m.Quality}
		}
	}

	var bits [NBits / 8]byte
	var qualitySum int
	for _, t := range triples {
		idx := bitIndex(t)
		bits[idx/8] |= 1 << (idx % 8)
		qualitySum += int(t.quality)
	}

	avgQuality := uint8(qualitySum / len(triples))

	return Template{FingerID: fingerID, Bits: bits, Quality: avgQuality}, nil
}

// bitIndex hashes a canonical triple with BLAKE2b and reduces the
// digest to a bit index mod NBits. This hash-based projection is not
// locality-preserving — two templates differing by one quantization
// bucket can set entirely unrelated output bits. That noise-amplifying
// behavior is a documented, preserved limitation (see spec §4.1,
// §9): a future revision replacing it with a grid-indicator mapping
// must bump HelperData.version, never alter this function's output for
// version 1.
func bitIndex(t canonicalTriple) uint32 {
	var buf [13]byte
	binary.BigEndian.PutUint32(buf[0:4], t.xq)
	binary.BigEndian.PutUint32(buf[4:8], t.yq)
	binary.BigEndian.PutUint32(buf[8:12], t.tq)
	buf[12] = byte(t.typ)

	digest := blake2b.Sum256(buf[:])
	v := binary.BigEndian.Uint32(digest[:4])
	return v % NBits
}

func filterByQuality(minutiae []Minutia, threshold uint8) []Minutia {
	kept := make([]Minutia, 0, len(minutiae))
	for _, m := range minutiae {
		if m.Quality >= threshold {
			kept = append(kept, m)
		}
	}
	return kept
}

func positions(minutiae []Minutia) (xs, ys []float64) {
	xs = make([]float64, len(minutiae))
	ys = make([]float64, len(minutiae))
	for i, m := range minutiae {
		xs[i] = float64(m.XUm)
		ys[i] = float64(m.YUm)
	}
	return xs, ys
}

func centroid(xs, ys []float64) (cx, cy float64) {
	for i := range xs {
		cx += xs[i]
		cy += ys[i]
	}
	n := float64(len(xs))
	return cx / n, cy / n
}

func translate(xs, ys []float64, dx, dy float64) {
	for i := range xs {
		xs[i] += dx
		ys[i] += dy
	}
}

// principalAxisAngle returns the angle (radians) of the first principal
// component of the (xs, ys) point cloud, computed via the 2x2
// covariance matrix's dominant eigenvector.
func principalAxisAngle(xs, ys []float64) float64 {
	var sxx, syy, sxy float64
	n := float64(len(xs))
	for i := range xs {
		sxx += xs[i] * xs[i]
		syy += ys[i] * ys[i]
		sxy += xs[i] * ys[i]
	}
	sxx /= n
	syy /= n
	sxy /= n

	// Eigenvector angle of a symmetric 2x2 matrix [[sxx, sxy],[sxy, syy]].
	return 0.5 * math.Atan2(2*sxy, sxx-syy)
}

func rotate(xs, ys []float64, theta float64) {
	cos, sin := math.Cos(theta), math.Sin(theta)
	for i := range xs {
		x, y := xs[i], ys[i]
		xs[i] = x*cos - y*sin
		ys[i] = x*sin + y*cos
	}
}

func radToDeg(r float64) float64 { return r * 180 / math.Pi }
