// Package biocore is the public orchestration API over the biometric
// cryptographic core: Enroll, Verify, Rotate, and Revoke compose the
// quantizer, fuzzy extractor, aggregator, DID builder, metadata
// assembler, storage adapter, and duplicate-detection index into the
// two end-to-end flows a caller actually needs.
package biocore

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fractionestate/decentralized-did/internal/aggregator"
	"github.com/fractionestate/decentralized-did/internal/bioerr"
	"github.com/fractionestate/decentralized-did/internal/did"
	"github.com/fractionestate/decentralized-did/internal/fuzzyextractor"
	"github.com/fractionestate/decentralized-did/internal/indexer"
	"github.com/fractionestate/decentralized-did/internal/metadata"
	"github.com/fractionestate/decentralized-did/internal/quantizer"
	"github.com/fractionestate/decentralized-did/internal/secret"
	"github.com/fractionestate/decentralized-did/internal/security"
	"github.com/fractionestate/decentralized-did/internal/storage"
)

// Mode selects how the API layer reports cryptographic failures and
// whether it pads wall-clock time (spec §5 "Rate limiting & replay").
type Mode int

const (
	// Production collapses every cryptographic-category error to
	// bioerr.ErrVerificationFailed and pads total call time toward
	// TargetWallClock, resisting timing-based membership inference.
	Production Mode = iota
	// Diagnostic returns the precise error and applies no padding; for
	// local tooling and tests only.
	Diagnostic
)

// TargetWallClock is the nominal total latency Verify pads toward in
// Production mode (spec §5: "500 ms ± jitter").
const TargetWallClock = 500 * time.Millisecond

// WallClockJitter bounds the random extra delay added on top of
// TargetWallClock so that repeated calls are not perfectly
// distinguishable by their exact latency.
const WallClockJitter = 50 * time.Millisecond

// FingerCapture is one finger's raw input to Enroll/Verify.
type FingerCapture struct {
	FingerID quantizer.FingerID
	Minutiae []quantizer.Minutia
}

// Dependencies bundles the external collaborators biocore needs. The
// core never constructs these itself — callers own their lifecycle.
type Dependencies struct {
	Storage storage.Adapter
	Index   indexer.Index
}

// EnrollOptions configures a single enrollment call.
type EnrollOptions struct {
	Network           did.Network
	Controllers       []string
	QuantizerParams   quantizer.Params
	AggregationPolicy aggregator.Policy
	HelperStorageMode metadata.StorageMode
	WithParity        bool
	Mode              Mode
}

// EnrollResult is the output of a successful enrollment.
type EnrollResult struct {
	Bundle    metadata.Bundle
	MasterKey *secret.Bytes
}

type fingerOutcome struct {
	fingerKey aggregator.FingerKey
	helper    fuzzyextractor.HelperData
	ref       storage.Ref
}

// Enroll runs C1-C8 end to end for a full set of finger captures: per
// finger, quantize and Gen a key (fanned out in parallel, spec §5
// "embarrassingly parallel and independent"); join by aggregating into
// a master key; derive the DID; reject if it's a duplicate; assemble
// and return the metadata bundle.
func Enroll(ctx context.Context, captures []FingerCapture, deps Dependencies, opts EnrollOptions) (result EnrollResult, err error) {
	defer func() {
		if opts.Mode == Production {
			err = bioerr.Collapse(err)
		}
	}()

	outcomes := make([]fingerOutcome, len(captures))

	group, gctx := errgroup.WithContext(ctx)
	for i, capture := range captures {
		i, capture := i, capture
		group.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			tpl, err := quantizer.Quantize(capture.Minutiae, capture.FingerID, opts.QuantizerParams)
			if err != nil {
				return err
			}

			key, helper, err := fuzzyextractor.Gen(tpl, capture.FingerID, fuzzyextractor.GenOptions{WithParity: opts.WithParity})
			if err != nil {
				return err
			}

			ref, err := deps.Storage.Store(EncodeHelper(helper))
			if err != nil {
				return fmt.Errorf("%w: finger %s", err, capture.FingerID)
			}

			outcomes[i] = fingerOutcome{
				fingerKey: aggregator.FingerKey{FingerID: capture.FingerID, Key: key, Quality: tpl.Quality},
				helper:    helper,
				ref:       ref,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return EnrollResult{}, err
	}

	fingerKeys := make([]aggregator.FingerKey, len(outcomes))
	for i, o := range outcomes {
		fingerKeys[i] = o.fingerKey
	}

	master, err := aggregator.Aggregate(fingerKeys, opts.AggregationPolicy)
	if err != nil {
		return EnrollResult{}, err
	}
	defer secret.Wipe(master[:])

	candidateDID, err := did.Derive(master, opts.Network)
	if err != nil {
		return EnrollResult{}, err
	}

	if err := indexer.CheckNotDuplicate(deps.Index, candidateDID); err != nil {
		return EnrollResult{}, err
	}

	helperRefs := make(map[quantizer.FingerID]metadata.HelperRef, len(outcomes))
	for _, o := range outcomes {
		helperRefs[o.fingerKey.FingerID] = helperRefToMetadata(opts.HelperStorageMode, o)
	}

	bundle, err := metadata.BuildBundle(
		candidateDID,
		helperRefs,
		opts.Controllers,
		time.Now().UTC(),
		metadata.AggregationPolicy{
			MinFingers:       opts.AggregationPolicy.MinFingers,
			PreferredFingers: opts.AggregationPolicy.PreferredFingers,
		},
		opts.HelperStorageMode,
	)
	if err != nil {
		return EnrollResult{}, err
	}

	return EnrollResult{Bundle: bundle, MasterKey: secret.FromBytes(append([]byte(nil), master[:]...))}, nil
}

// VerifyOptions configures a single verification call.
type VerifyOptions struct {
	Network           did.Network
	AggregationPolicy aggregator.Policy
	Mode              Mode
	// Limiter, when set, bounds the rate of Verify calls a caller may
	// issue against this process (spec §5 "Rate limiting & replay").
	// A long-running service shares one Limiter across requests; a
	// one-shot CLI invocation has nothing to share it with and leaves
	// this nil.
	Limiter *security.RateLimiter
}

// VerifyResult reports whether a fresh capture set reproduces the
// enrolled DID.
type VerifyResult struct {
	Matched bool
	DID     did.Identifier
}

// Verify recomputes each finger's key via fuzzyextractor.Rep, joins
// via aggregation, re-derives the DID, and compares it against the
// bundle's stored DID in constant time. In Production mode the call
// pads its total latency toward TargetWallClock regardless of which
// internal step failed, preventing a network observer from
// distinguishing failure causes by timing (spec §5).
func Verify(ctx context.Context, captures []FingerCapture, helpers map[quantizer.FingerID]fuzzyextractor.HelperData, bundle metadata.Bundle, opts VerifyOptions) (result VerifyResult, err error) {
	start := time.Now()
	defer func() {
		if opts.Mode == Production {
			err = bioerr.Collapse(err)
			padWallClock(start)
		}
	}()

	if bundle.Revoked {
		return VerifyResult{}, bioerr.ErrRevokedBundle
	}

	if opts.Limiter != nil && !opts.Limiter.Allow() {
		return VerifyResult{}, fmt.Errorf("%w: verification rate limit exceeded", bioerr.ErrQuotaExceeded)
	}

	fingerKeys := make([]aggregator.FingerKey, len(captures))
	group, gctx := errgroup.WithContext(ctx)
	for i, capture := range captures {
		i, capture := i, capture
		group.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			helper, ok := helpers[capture.FingerID]
			if !ok {
				return fmt.Errorf("%w: no helper for finger %s", bioerr.ErrFetchFailed, capture.FingerID)
			}

			tpl, err := quantizer.Quantize(capture.Minutiae, capture.FingerID, quantizer.DefaultParams())
			if err != nil {
				return err
			}

			key, err := fuzzyextractor.Rep(tpl, helper, capture.FingerID)
			if err != nil {
				return err
			}

			fingerKeys[i] = aggregator.FingerKey{FingerID: capture.FingerID, Key: key, Quality: tpl.Quality}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return VerifyResult{}, err
	}

	master, err := aggregator.Aggregate(fingerKeys, opts.AggregationPolicy)
	if err != nil {
		return VerifyResult{}, err
	}
	defer secret.Wipe(master[:])

	candidateDID, err := did.Derive(master, opts.Network)
	if err != nil {
		return VerifyResult{}, err
	}

	matched := secret.ConstantTimeEqual([]byte(candidateDID), []byte(bundle.DID))
	return VerifyResult{Matched: matched, DID: candidateDID}, nil
}

// RotateFinger replaces one finger's contribution to a bundle's master
// key material: both the old and new fuzzy-extractor keys for that
// finger must be supplied, which authenticates that the caller
// actually controls the enrollment being modified (spec §4.4
// "Rotation"). The caller is responsible for persisting the new helper
// data and updating the bundle's helper reference for fingerID.
func RotateFinger(oldMaster aggregator.MasterKey, oldFingerKey, newFingerKey [32]byte) aggregator.MasterKey {
	return aggregator.Rotate(oldMaster, oldFingerKey, newFingerKey)
}

// RevokeBundle authorizes a controller-signed revocation transition on
// a metadata bundle.
func RevokeBundle(bundle metadata.Bundle, signerAddress string) (metadata.Bundle, error) {
	return metadata.RevokeBundle(bundle, signerAddress, time.Now().UTC())
}

// EncodeHelper serializes HelperData into the flat wire encoding stored
// by the storage adapter and inline helper refs: version, algorithm ID,
// salt, personalization, sketch, MAC, then an optional parity block.
// Callers persisting or transmitting HelperData outside this package
// must go through EncodeHelper/DecodeHelper rather than encoding/gob or
// reflection-based codecs, since HelperData's wire layout is part of
// the authenticated surface the MAC covers.
func EncodeHelper(helper fuzzyextractor.HelperData) []byte {
	buf := make([]byte, 0, 2+32+32+16+32+1+1+1+len(helper.Parity.Parities))
	buf = append(buf, helper.Version, helper.AlgorithmID)
	buf = append(buf, helper.Salt[:]...)
	buf = append(buf, helper.Personalization[:]...)
	buf = append(buf, helper.Sketch[:]...)
	buf = append(buf, helper.MAC[:]...)

	if helper.HasParity {
		buf = append(buf, 1, byte(helper.Parity.BlockSize), byte(len(helper.Parity.Parities)))
		buf = append(buf, helper.Parity.Parities...)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeHelper is the inverse of EncodeHelper.
func DecodeHelper(data []byte) (fuzzyextractor.HelperData, error) {
	var helper fuzzyextractor.HelperData
	const fixedLen = 2 + 32 + 32 + 16 + 32 + 1
	if len(data) < fixedLen {
		return helper, fmt.Errorf("biocore: helper data too short: %d bytes", len(data))
	}

	helper.Version = data[0]
	helper.AlgorithmID = data[1]
	off := 2
	copy(helper.Salt[:], data[off:off+32])
	off += 32
	copy(helper.Personalization[:], data[off:off+32])
	off += 32
	copy(helper.Sketch[:], data[off:off+16])
	off += 16
	copy(helper.MAC[:], data[off:off+32])
	off += 32

	hasParity := data[off]
	off++
	if hasParity == 0 {
		return helper, nil
	}

	if len(data) < off+2 {
		return helper, fmt.Errorf("biocore: truncated parity header")
	}
	blockSize := int(data[off])
	parityLen := int(data[off+1])
	off += 2
	if len(data) < off+parityLen {
		return helper, fmt.Errorf("biocore: truncated parity payload")
	}

	helper.HasParity = true
	helper.Parity.BlockSize = blockSize
	helper.Parity.Parities = append([]byte(nil), data[off:off+parityLen]...)
	return helper, nil
}

func helperRefToMetadata(mode metadata.StorageMode, o fingerOutcome) metadata.HelperRef {
	if mode == metadata.Inline {
		return metadata.HelperRef{InlineBytes: EncodeHelper(o.helper)}
	}
	hash := o.ref.IntegrityHash
	return metadata.HelperRef{URI: o.ref.URI, IntegrityHash: hash[:]}
}

// padWallClock sleeps until TargetWallClock has elapsed since start,
// plus a random jitter up to WallClockJitter. If the call already ran
// longer than the target, no sleep happens — this pads up, it never
// shortens a slow path.
func padWallClock(start time.Time) {
	var jitterBuf [8]byte
	rand.Read(jitterBuf[:])
	jitter := time.Duration(binary.BigEndian.Uint64(jitterBuf[:])%uint64(WallClockJitter)) * time.Nanosecond

	elapsed := time.Since(start)
	target := TargetWallClock + jitter
	if elapsed < target {
		time.Sleep(target - elapsed)
	}
}
