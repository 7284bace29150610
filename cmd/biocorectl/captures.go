package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fractionestate/decentralized-did/internal/quantizer"
	"github.com/fractionestate/decentralized-did/internal/security"
	"github.com/fractionestate/decentralized-did/pkg/biocore"
)

// captureInputValidator bounds a raw captures file to a generous size
// (a capture set with thousands of minutiae per finger still fits) and
// rejects null bytes and invalid UTF-8 before the bytes ever reach
// encoding/json.
var captureInputValidator = &security.InputValidator{
	MaxLength:      4 << 20, // 4 MiB
	AllowNullBytes: false,
	RequireUTF8:    true,
}

// captureFile is the on-disk JSON shape for a set of finger captures
// fed to enroll/verify: one entry per finger, each carrying the raw
// minutiae a caller's scanner produced for that finger.
type captureFile []struct {
	FingerID string `json:"finger_id"`
	Minutiae []struct {
		XUm      uint32 `json:"x_um"`
		YUm      uint32 `json:"y_um"`
		ThetaDeg uint16 `json:"theta_deg"`
		Type     uint8  `json:"type"`
		Quality  uint8  `json:"quality"`
	} `json:"minutiae"`
}

func loadCaptures(path string) ([]biocore.FingerCapture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captures file: %w", err)
	}
	if err := captureInputValidator.ValidateBytes(data); err != nil {
		return nil, fmt.Errorf("captures file failed input validation: %w", err)
	}

	var raw captureFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse captures file: %w", err)
	}

	captures := make([]biocore.FingerCapture, len(raw))
	for i, entry := range raw {
		fingerID := quantizer.FingerID(entry.FingerID)
		if !quantizer.ValidFingerID(fingerID) {
			return nil, fmt.Errorf("capture %d: unrecognized finger id %q", i, entry.FingerID)
		}

		minutiae := make([]quantizer.Minutia, len(entry.Minutiae))
		for j, m := range entry.Minutiae {
			minutiae[j] = quantizer.Minutia{
				XUm:      m.XUm,
				YUm:      m.YUm,
				ThetaDeg: m.ThetaDeg,
				Type:     quantizer.MinutiaType(m.Type),
				Quality:  m.Quality,
			}
		}

		captures[i] = biocore.FingerCapture{FingerID: fingerID, Minutiae: minutiae}
	}

	return captures, nil
}
