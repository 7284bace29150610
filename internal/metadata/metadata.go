// Package metadata builds and validates the versioned enrollment
// bundle (C6): DID, per-finger helper references, controllers,
// revocation state, and the aggregation policy that produced the
// master key.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fractionestate/decentralized-did/internal/bioerr"
	"github.com/fractionestate/decentralized-did/internal/did"
	"github.com/fractionestate/decentralized-did/internal/quantizer"
)

// BundleVersion is the only version this package currently produces
// or accepts.
const BundleVersion = "1.1"

// MetadataLabel is the transaction-message metadata label the bundle
// is tagged with on-chain (spec §6).
const MetadataLabel = 674

// MaxInlineBytes bounds a bundle serialized with HelperStorage ==
// Inline (spec §3, §4.6).
const MaxInlineBytes = 16 * 1024

// StorageMode selects whether helper blobs travel inline in the bundle
// or live in external storage referenced by URI.
type StorageMode string

const (
	Inline   StorageMode = "inline"
	External StorageMode = "external"
)

// HelperRef is one finger's helper-data reference within a bundle:
// either the raw bytes (Inline) or a URI plus integrity hash
// (External).
type HelperRef struct {
	InlineBytes   []byte `json:"inline_bytes,omitempty" cbor:"inline_bytes,omitempty"`
	URI           string `json:"uri,omitempty" cbor:"uri,omitempty"`
	IntegrityHash []byte `json:"integrity_hash,omitempty" cbor:"integrity_hash,omitempty"`
}

// AggregationPolicy is the subset of aggregator.Policy that the bundle
// publishes for later auditing (quality_fallback tiers are not
// published, matching spec §3's "quality thresholds and minimum
// fingers" phrasing).
type AggregationPolicy struct {
	MinFingers       int `json:"min_fingers" cbor:"min_fingers"`
	PreferredFingers int `json:"preferred_fingers" cbor:"preferred_fingers"`
}

// Bundle is the versioned enrollment metadata record (spec §3
// "MetadataBundle v1.1").
type Bundle struct {
	Version             string                            `json:"version" cbor:"version"`
	DID                 did.Identifier                    `json:"did" cbor:"did"`
	Controllers         []string                          `json:"controllers" cbor:"controllers"`
	HelperStorage       StorageMode                       `json:"helper_storage" cbor:"helper_storage"`
	Helpers             map[quantizer.FingerID]HelperRef  `json:"helpers" cbor:"helpers"`
	EnrollmentTimestamp time.Time                         `json:"enrollment_timestamp" cbor:"enrollment_timestamp"`
	Revoked             bool                              `json:"revoked" cbor:"revoked"`
	RevocationTimestamp *time.Time                        `json:"revocation_timestamp,omitempty" cbor:"revocation_timestamp,omitempty"`
	AggregationPolicy   AggregationPolicy                 `json:"aggregation_policy" cbor:"aggregation_policy"`
}

// BuildBundle assembles and validates a new enrollment bundle (spec
// §4.6 "Contract"). The returned bundle is immutable except for the
// controller-authorized transition performed by RevokeBundle.
func BuildBundle(
	didID did.Identifier,
	helperRefs map[quantizer.FingerID]HelperRef,
	controllers []string,
	enrollmentTS time.Time,
	policy AggregationPolicy,
	storageMode StorageMode,
) (Bundle, error) {
	bundle := Bundle{
		Version:             BundleVersion,
		DID:                 didID,
		Controllers:         append([]string(nil), controllers...),
		HelperStorage:       storageMode,
		Helpers:             helperRefs,
		EnrollmentTimestamp: enrollmentTS,
		AggregationPolicy:   policy,
	}

	if err := Validate(bundle); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}

// Validate runs the enumerated checks from spec §4.6.
func Validate(bundle Bundle) error {
	if bundle.Version != BundleVersion {
		return fmt.Errorf("%w: bundle version %q", bioerr.ErrIntegrityMismatch, bundle.Version)
	}
	if len(bundle.Controllers) == 0 {
		return fmt.Errorf("%w: bundle has no controllers", bioerr.ErrUnauthorizedController)
	}
	if len(bundle.Helpers) == 0 {
		return fmt.Errorf("%w: bundle has no helper entries", bioerr.ErrInsufficientFingers)
	}
	for fingerID, ref := range bundle.Helpers {
		if !quantizer.ValidFingerID(fingerID) {
			return fmt.Errorf("%w: finger id %q", bioerr.ErrInvalidFingerID, fingerID)
		}
		if bundle.HelperStorage == External {
			if ref.URI == "" || len(ref.IntegrityHash) != 32 {
				return fmt.Errorf("%w: external helper for %q missing uri or integrity hash", bioerr.ErrIntegrityMismatch, fingerID)
			}
		}
	}
	if bundle.Revoked {
		if bundle.RevocationTimestamp == nil {
			return fmt.Errorf("%w: revoked bundle missing revocation timestamp", bioerr.ErrRevokedBundle)
		}
		if bundle.RevocationTimestamp.Before(bundle.EnrollmentTimestamp) {
			return fmt.Errorf("%w: revocation precedes enrollment", bioerr.ErrRevokedBundle)
		}
	}
	if bundle.HelperStorage == Inline {
		encoded, err := EncodeCBOR(bundle)
		if err != nil {
			return err
		}
		if len(encoded) > MaxInlineBytes {
			return fmt.Errorf("%w: inline bundle is %d bytes, exceeds %d byte limit", bioerr.ErrQuotaExceeded, len(encoded), MaxInlineBytes)
		}
	}

	return validateAgainstSchema(bundle)
}

// RevokeBundle flips Revoked to true and stamps RevocationTimestamp,
// but only when signerAddress is one of the bundle's controllers
// (spec §4.6 "Revocation transition").
func RevokeBundle(bundle Bundle, signerAddress string, now time.Time) (Bundle, error) {
	authorized := false
	for _, controller := range bundle.Controllers {
		if controller == signerAddress {
			authorized = true
			break
		}
	}
	if !authorized {
		return Bundle{}, bioerr.ErrUnauthorizedController
	}

	revoked := bundle
	revoked.Revoked = true
	revoked.RevocationTimestamp = &now
	if err := Validate(revoked); err != nil {
		return Bundle{}, err
	}
	return revoked, nil
}

// CanonicalJSON serializes a bundle to its canonical JSON form (fixed
// struct field order, no whitespace).
func CanonicalJSON(bundle Bundle) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(bundle); err != nil {
		return nil, fmt.Errorf("metadata: canonical json encode: %w", err)
	}
	out := buf.Bytes()
	return bytes.TrimRight(out, "\n"), nil
}

// cborEncMode is a deterministic (map-key-sorted, shortest-form)
// encoding mode, required for a bundle's CBOR form to be suitable for
// on-chain embedding where byte-identical re-encodings matter.
var cborEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("metadata: invalid cbor encoding options: %v", err))
	}
	return mode
}()

// EncodeCBOR serializes a bundle to deterministic CBOR (spec §6).
func EncodeCBOR(bundle Bundle) ([]byte, error) {
	out, err := cborEncMode.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("metadata: cbor encode: %w", err)
	}
	return out, nil
}

// DecodeCBOR parses a bundle previously produced by EncodeCBOR.
func DecodeCBOR(data []byte) (Bundle, error) {
	var bundle Bundle
	if err := cbor.Unmarshal(data, &bundle); err != nil {
		return Bundle{}, fmt.Errorf("metadata: cbor decode: %w", err)
	}
	return bundle, nil
}

const bundleSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "did", "controllers", "helper_storage", "helpers", "enrollment_timestamp", "revoked", "aggregation_policy"],
  "properties": {
    "version": {"const": "1.1"},
    "did": {"type": "string", "minLength": 1},
    "controllers": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "helper_storage": {"enum": ["inline", "external"]},
    "helpers": {"type": "object", "minProperties": 1},
    "enrollment_timestamp": {"type": "string"},
    "revoked": {"type": "boolean"},
    "revocation_timestamp": {"type": ["string", "null"]},
    "aggregation_policy": {
      "type": "object",
      "required": ["min_fingers", "preferred_fingers"],
      "properties": {
        "min_fingers": {"type": "integer", "minimum": 1},
        "preferred_fingers": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

var bundleSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("metadata-bundle-v1.1.schema.json", bytes.NewReader([]byte(bundleSchemaJSON))); err != nil {
		panic(fmt.Sprintf("metadata: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("metadata-bundle-v1.1.schema.json")
	if err != nil {
		panic(fmt.Sprintf("metadata: schema compile failed: %v", err))
	}
	return schema
}()

// validateAgainstSchema re-validates a bundle's JSON form against the
// versioned JSON Schema, catching any structural drift the hand-written
// checks above didn't (field renames, type mismatches introduced by a
// future version bump).
func validateAgainstSchema(bundle Bundle) error {
	raw, err := CanonicalJSON(bundle)
	if err != nil {
		return err
	}

	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("metadata: re-parsing canonical json: %w", err)
	}

	if err := bundleSchema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", bioerr.ErrIntegrityMismatch, err)
	}
	return nil
}
