// Package aggregator combines per-finger fuzzy-extractor keys into a
// single master key, with fallback thresholds, rotation, and
// revocation (C4).
//
// XOR combination is the whole trick here, in the same spirit as the
// ratchet advance in keyhierarchy: it preserves length and per-bit
// entropy, is commutative so finger order never matters once inputs
// are canonically sorted, and makes rotation/revocation a local O(1)
// operation rather than a full re-aggregation.
package aggregator

import (
	"sort"

	"github.com/fractionestate/decentralized-did/internal/bioerr"
	"github.com/fractionestate/decentralized-did/internal/quantizer"
)

// FingerKey is one finger's contribution to aggregation: the key
// recovered by fuzzyextractor.Gen/Rep, its finger identifier, and the
// template quality score that fed it.
type FingerKey struct {
	FingerID quantizer.FingerID
	Key      [32]byte
	Quality  uint8
}

// FallbackTier is one (k, m) entry of a quality_fallback table: k of m
// preferred fingers may be accepted, provided every accepted finger's
// quality is >= MinQuality.
type FallbackTier struct {
	K          int
	M          int
	MinQuality uint8
}

// Policy configures aggregation acceptance (spec §4.4).
type Policy struct {
	MinFingers       int
	PreferredFingers int
	QualityFallback  []FallbackTier
	Strict           bool
}

// DefaultPolicy returns the recognized default aggregation policy:
// min_fingers=2, preferred_fingers=4, and fallback tiers 4/4 always,
// 3/4 at quality>=70, 2/4 at quality>=85.
func DefaultPolicy() Policy {
	return Policy{
		MinFingers:       2,
		PreferredFingers: 4,
		QualityFallback: []FallbackTier{
			{K: 4, M: 4, MinQuality: 0},
			{K: 3, M: 4, MinQuality: 70},
			{K: 2, M: 4, MinQuality: 85},
		},
		Strict: false,
	}
}

// MasterKey is the 32-byte aggregate derived from per-finger keys.
type MasterKey [32]byte

// Aggregate sorts contributing keys by canonical finger identifier,
// checks the policy is satisfied, and XORs them into a MasterKey
// (spec §4.4 "Algorithm").
func Aggregate(keys []FingerKey, policy Policy) (MasterKey, error) {
	sorted := make([]FingerKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FingerID < sorted[j].FingerID
	})

	if err := checkPolicy(sorted, policy); err != nil {
		return MasterKey{}, err
	}

	var master MasterKey
	for _, fk := range sorted {
		for i := range master {
			master[i] ^= fk.Key[i]
		}
	}
	return master, nil
}

// checkPolicy verifies the accepted finger count satisfies either the
// preferred count or one of the quality_fallback tiers, and in all
// cases at least min_fingers.
func checkPolicy(sorted []FingerKey, policy Policy) error {
	n := len(sorted)
	if n < policy.MinFingers {
		return bioerr.ErrInsufficientFingers
	}

	if n >= policy.PreferredFingers {
		return nil
	}

	if policy.Strict {
		return bioerr.ErrInsufficientFingers
	}

	minQuality := minQualityOf(sorted)
	tierFound := false
	for _, tier := range policy.QualityFallback {
		if tier.K != n {
			continue
		}
		tierFound = true
		if minQuality >= tier.MinQuality {
			return nil
		}
	}

	if tierFound {
		return bioerr.ErrQualityBelowFallbackThresh
	}
	return bioerr.ErrInsufficientFingers
}

func minQualityOf(keys []FingerKey) uint8 {
	if len(keys) == 0 {
		return 0
	}
	min := keys[0].Quality
	for _, k := range keys[1:] {
		if k.Quality < min {
			min = k.Quality
		}
	}
	return min
}

// Rotate replaces one finger's contribution to an existing master key
// without touching the others: new_master = old_master ⊕ old_finger_key
// ⊕ new_finger_key. Valid only when the caller holds both the old and
// new per-finger keys, which authenticates the owner (spec §4.4
// "Rotation").
func Rotate(oldMaster MasterKey, oldFingerKey, newFingerKey [32]byte) MasterKey {
	var out MasterKey
	for i := range out {
		out[i] = oldMaster[i] ^ oldFingerKey[i] ^ newFingerKey[i]
	}
	return out
}

// Revoke removes one finger's contribution from a master key. The
// caller is responsible for checking the post-revocation finger set
// still satisfies the aggregation policy's min_fingers before treating
// the result as valid (spec §4.4 "Revocation").
func Revoke(master MasterKey, fingerKey [32]byte) MasterKey {
	var out MasterKey
	for i := range out {
		out[i] = master[i] ^ fingerKey[i]
	}
	return out
}
