// Package fuzzyextractor implements the secure-sketch fuzzy extractor
// (C3): Gen(template) -> (key, helper) at enrollment and
// Rep(noisy_template, helper) -> key | failure at reproduction.
//
// The construction is a code-offset secure sketch (Juels-Wattenberg
// style) over a single BCH(127,64,t=10) block: a random 64-bit seed is
// BCH-encoded and XORed against the first 127 bits of the 512-bit
// template to produce the sketch. Because any Hamming-distance-≤10
// noise budget spread across the full 512-bit template induces at most
// 10 flips within any 127-bit window of it, this single-block
// construction already satisfies the "≤10 bit template flips always
// reproduce" invariant (spec §8) without needing to cover every
// template bit in the sketch.
package fuzzyextractor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"

	"github.com/fractionestate/decentralized-did/internal/bch"
	"github.com/fractionestate/decentralized-did/internal/bioerr"
	"github.com/fractionestate/decentralized-did/internal/quantizer"
	"github.com/fractionestate/decentralized-did/internal/secret"
)

// DomainTag scopes all HKDF/BLAKE2b derivations in this package so
// that key material here can never collide with a derivation from an
// unrelated protocol reusing the same primitives.
const DomainTag = "decentralized-did-fuzzy-extractor-v1"

const (
	// Version1 is the only currently defined HelperData encoding.
	Version1 uint8 = 1

	// AlgoBCH127_64_BLAKE2b_HMACSHA256 is the sole registered algorithm
	// identifier: BCH(127,64,t=10) sketch, BLAKE2b-512 domain separation,
	// HMAC-SHA256 helper-data authentication, HKDF-SHA256 key expansion.
	AlgoBCH127_64_BLAKE2b_HMACSHA256 uint8 = 1
)

// HelperData is the self-describing, authenticated public output of
// Gen (spec §3). It contains no direct biometric features.
type HelperData struct {
	Version         uint8
	AlgorithmID     uint8
	Salt            [32]byte
	Personalization [32]byte
	Sketch          [16]byte // code-offset sketch over one 127-bit BCH block
	MAC             [32]byte

	// Parity is an optional quality-of-service helper (spec §4.2): a
	// per-block parity record letting Rep recover a small number of
	// flips beyond BCH's guaranteed t=10. Absent (HasParity false) at
	// default enrollment; callers may opt in via GenOptions.
	HasParity bool
	Parity    bch.BlockParity
}

// GenOptions configures optional Gen behavior.
type GenOptions struct {
	// WithParity attaches a parity-assisted recovery helper alongside
	// the sketch (spec §4.2 fallback).
	WithParity bool
	// ParityBlockSize is the block size in bytes used for the parity
	// helper when WithParity is set; 4 is a reasonable default.
	ParityBlockSize int
}

// Gen derives a 32-byte key and authenticated helper data from a
// canonical per-finger template (spec §4.3 "Gen steps").
func Gen(template quantizer.Template, fingerID quantizer.FingerID, opts GenOptions) (key [32]byte, helper HelperData, err error) {
	if !quantizer.ValidFingerID(fingerID) {
		return key, helper, bioerr.ErrInvalidFingerID
	}

	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return key, helper, fmt.Errorf("fuzzyextractor: salt generation failed: %w", err)
	}

	personalization := derivePersonalization(fingerID)

	var seedBytes [8]byte
	if _, err := rand.Read(seedBytes[:]); err != nil {
		return key, helper, fmt.Errorf("fuzzyextractor: seed generation failed: %w", err)
	}
	seed := bch.Msg(binary.BigEndian.Uint64(seedBytes[:]))
	defer secret.Wipe(seedBytes[:])

	codeword := bch.Encode(seed)
	sketch := xor16(segmentOf(template), codewordBytes(codeword))

	helper = HelperData{
		Version:         Version1,
		AlgorithmID:     AlgoBCH127_64_BLAKE2b_HMACSHA256,
		Salt:            salt,
		Personalization: personalization,
		Sketch:          sketch,
	}

	if opts.WithParity {
		blockSize := opts.ParityBlockSize
		if blockSize <= 0 {
			blockSize = 4
		}
		helper.HasParity = true
		helper.Parity = bch.ComputeBlockParity(codeword, blockSize)
	}

	macKey := deriveMACKey(salt, personalization)
	mac := computeMAC(macKey, helper)
	helper.MAC = mac

	derivedKey := deriveKey(salt, personalization, seedBytes)
	secret.Wipe(macKey[:])

	return derivedKey, helper, nil
}

// Rep reproduces the 32-byte key from a noisy template and previously
// issued helper data (spec §4.3 "Rep steps").
func Rep(noisy quantizer.Template, helper HelperData, fingerID quantizer.FingerID) (key [32]byte, err error) {
	if !quantizer.ValidFingerID(fingerID) {
		return key, bioerr.ErrInvalidFingerID
	}
	if helper.Version != Version1 {
		return key, bioerr.ErrVersionUnsupported
	}

	personalization := derivePersonalization(fingerID)
	macKey := deriveMACKey(helper.Salt, personalization)
	defer secret.Wipe(macKey[:])

	expectedMAC := computeMAC(macKey, withoutMAC(helper))
	if !secret.ConstantTimeEqual(expectedMAC[:], helper.MAC[:]) {
		return key, bioerr.ErrMacMismatch
	}

	noisyEncoded := xor16(segmentOf(noisy), helper.Sketch)
	codeword := bch.Codeword{}
	copy(codeword[:], noisyEncoded[:])

	var seedVal bch.Msg
	var decodeErr error
	if helper.HasParity {
		seedVal, _, decodeErr = bch.DecodeWithParity(codeword, helper.Parity)
	} else {
		seedVal, _, decodeErr = bch.Decode(codeword)
	}
	if decodeErr != nil {
		return key, fmt.Errorf("%w: %w", bioerr.ErrReproduceFailed, decodeErr)
	}

	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], uint64(seedVal))
	defer secret.Wipe(seedBytes[:])

	return deriveKey(helper.Salt, personalization, seedBytes), nil
}

func derivePersonalization(fingerID quantizer.FingerID) [32]byte {
	return blake2b.Sum256(append([]byte(DomainTag+"-pers-"), fingerID...))
}

func deriveMACKey(salt, personalization [32]byte) [32]byte {
	input := make([]byte, 0, len("mac")+len(salt)+len(personalization))
	input = append(input, "mac"...)
	input = append(input, salt[:]...)
	input = append(input, personalization[:]...)
	full := blake2b.Sum512(input)
	var key [32]byte
	copy(key[:], full[:32])
	return key
}

// deriveKey expands the recovered BCH seed into the 32-byte extractor
// key with HKDF-SHA256 (the strong extractor of spec §3): salt is the
// HKDF salt, personalization binds the output to this finger.
func deriveKey(salt, personalization [32]byte, seed [8]byte) [32]byte {
	info := append([]byte(DomainTag+"-key-"), personalization[:]...)
	reader := hkdf.New(sha256.New, seed[:], salt[:], info)
	var key [32]byte
	// A fixed 32-byte read from a fresh HKDF reader is always within
	// RFC 5869's 255*hash-length output bound; the error is unreachable.
	_, _ = io.ReadFull(reader, key[:])
	return key
}

// withoutMAC returns a copy of helper with its MAC field zeroed,
// matching the data covered by computeMAC.
func withoutMAC(helper HelperData) HelperData {
	helper.MAC = [32]byte{}
	return helper
}

func computeMAC(macKey [32]byte, helper HelperData) [32]byte {
	mac := hmac.New(sha256.New, macKey[:])
	mac.Write([]byte{helper.Version, helper.AlgorithmID})
	mac.Write(helper.Salt[:])
	mac.Write(helper.Personalization[:])
	mac.Write(helper.Sketch[:])
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// segmentOf extracts the first 127 bits of a 512-bit template as a
// 16-byte array with its top bit (template bit 127) masked to zero,
// matching bch.Codeword's 127-meaningful-bit convention.
func segmentOf(tpl quantizer.Template) [16]byte {
	var seg [16]byte
	copy(seg[:], tpl.Bits[:16])
	seg[15] &= 0x7F
	return seg
}

func codewordBytes(cw bch.Codeword) [16]byte {
	var out [16]byte
	copy(out[:], cw[:])
	return out
}

func xor16(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
