package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fractionestate/decentralized-did/internal/aggregator"
	"github.com/fractionestate/decentralized-did/internal/bioerr"
	"github.com/fractionestate/decentralized-did/internal/config"
	"github.com/fractionestate/decentralized-did/internal/did"
	"github.com/fractionestate/decentralized-did/internal/fuzzyextractor"
	"github.com/fractionestate/decentralized-did/internal/indexer"
	"github.com/fractionestate/decentralized-did/internal/logging"
	"github.com/fractionestate/decentralized-did/internal/metadata"
	"github.com/fractionestate/decentralized-did/internal/quantizer"
	"github.com/fractionestate/decentralized-did/internal/security"
	"github.com/fractionestate/decentralized-did/internal/storage"
	"github.com/fractionestate/decentralized-did/pkg/biocore"
)

// decodeKeyHex parses a 32-byte hex-encoded key argument.
func decodeKeyHex(s string) ([32]byte, error) {
	var key [32]byte
	if err := security.ValidateHexString(s, 64); err != nil {
		return key, fmt.Errorf("invalid hex: %w", err)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// auditErrorDetails reduces err to the sanitized category+code pair the
// audit trail is allowed to carry (spec: audit logs "receive a
// sanitized error code and never any biometric material or
// secret-dependent detail"), falling back to a generic label for
// errors outside the closed taxonomy.
func auditErrorDetails(err error) map[string]interface{} {
	details := map[string]interface{}{}
	if code, ok := bioerr.CodeOf(err); ok {
		details["code"] = code
	} else {
		details["code"] = "UNKNOWN"
	}
	if cat, ok := bioerr.CategoryOf(err); ok {
		details["category"] = string(cat)
	}
	return details
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		printError(fmt.Sprintf("loading config: %v", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError(fmt.Sprintf("invalid config: %v", err))
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		printError(fmt.Sprintf("preparing config directories: %v", err))
		os.Exit(1)
	}
	return cfg
}

// openIndex opens the duplicate-detection index selected by
// cfg.RegistryBackend. The jsonl backend hydrates an in-memory
// indexer.Registry from a snapshot file up front; the sqlite backend
// queries its database directly on every lookup and needs no loading
// step, trading per-call latency for not losing registrations on an
// unclean CLI exit between Register and appendToRegistry.
func openIndex(cfg *config.Config) (indexer.Index, func() error, error) {
	switch cfg.RegistryBackend {
	case "sqlite":
		idx, err := indexer.OpenSQLiteIndex(cfg.RegistryPath)
		if err != nil {
			return nil, nil, err
		}
		return idx, idx.Close, nil
	default:
		reg, err := loadRegistry(cfg.RegistryPath)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() error { return nil }, nil
	}
}

// loadRegistry replays the JSON-lines registry snapshot into an
// in-memory indexer.Registry. A missing file is an empty registry.
func loadRegistry(path string) (*indexer.Registry, error) {
	reg := indexer.NewRegistry()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var bundle metadata.Bundle
		if err := json.Unmarshal(line, &bundle); err != nil {
			return nil, fmt.Errorf("parse registry line: %w", err)
		}
		reg.Register(bundle)
	}
	return reg, scanner.Err()
}

// registerBundle records bundle as a recognized identity in idx. The
// sqlite backend persists on its own; the jsonl backend needs the
// in-memory map updated and the change appended to its snapshot file.
func registerBundle(idx indexer.Index, bundle metadata.Bundle, registryPath string) error {
	switch backend := idx.(type) {
	case *indexer.SQLiteIndex:
		return backend.Register(bundle)
	case *indexer.Registry:
		backend.Register(bundle)
		return appendToRegistry(registryPath, bundle)
	default:
		return fmt.Errorf("registerBundle: unsupported index type %T", idx)
	}
}

func appendToRegistry(path string, bundle metadata.Bundle) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoded, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	_, err = f.Write(append(encoded, '\n'))
	return err
}

func storageAdapter(cfg *config.Config, mode metadata.StorageMode) (storage.Adapter, error) {
	if mode == metadata.Inline {
		return storage.NewInlineAdapter(), nil
	}
	return storage.NewFilesystemAdapter(cfg.HelperStoreDir)
}

func parseNetwork(tag string) did.Network {
	return did.Network(tag)
}

// controllerFlags collects repeated -controller flags.
type controllerFlags []string

func (c *controllerFlags) String() string { return fmt.Sprint([]string(*c)) }
func (c *controllerFlags) Set(v string) error {
	*c = append(*c, v)
	return nil
}

func cmdEnroll(args []string) {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	network := fs.String("network", "mainnet", "network tag")
	storageMode := fs.String("storage", "", "helper storage mode: inline or filesystem")
	withParity := fs.Bool("parity", false, "attach parity-assisted recovery helpers")
	outPath := fs.String("out", "", "output bundle path (default stdout)")
	register := fs.Bool("register", false, "register the bundle in the local duplicate index")
	var controllers controllerFlags
	fs.Var(&controllers, "controller", "controller address (repeatable)")
	if err := fs.Parse(args); err != nil {
		printError(fmt.Sprintf("parsing flags: %v", err))
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		printError("Usage: biocorectl enroll <captures.json> [options]")
		os.Exit(1)
	}
	if len(controllers) == 0 {
		printError("at least one -controller is required")
		os.Exit(1)
	}

	cfg := loadConfig()
	mode := metadata.StorageMode(*storageMode)
	if mode == "" {
		mode = metadata.StorageMode(cfg.HelperStorageMode)
	}
	if mode == "filesystem" {
		mode = metadata.External
	}

	captures, err := loadCaptures(fs.Arg(0))
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	adapter, err := storageAdapter(cfg, mode)
	if err != nil {
		printError(fmt.Sprintf("opening storage adapter: %v", err))
		os.Exit(1)
	}

	idx, closeIdx, err := openIndex(cfg)
	if err != nil {
		printError(fmt.Sprintf("opening registry: %v", err))
		os.Exit(1)
	}
	defer closeIdx()

	ctx := context.Background()
	result, err := biocore.Enroll(ctx, captures, biocore.Dependencies{
		Storage: adapter,
		Index:   idx,
	}, biocore.EnrollOptions{
		Network:           parseNetwork(*network),
		Controllers:       controllers,
		QuantizerParams:   quantizer.DefaultParams(),
		AggregationPolicy: aggregator.Policy{MinFingers: cfg.MinFingers, PreferredFingers: cfg.PreferredFingers, QualityFallback: aggregator.DefaultPolicy().QualityFallback},
		HelperStorageMode: mode,
		WithParity:        *withParity,
		Mode:              biocore.Diagnostic,
	})
	if err != nil {
		logging.AuditEnrollment(ctx, "", false, auditErrorDetails(err))
		printError(fmt.Sprintf("enrollment failed: %v", err))
		os.Exit(1)
	}
	defer result.MasterKey.Wipe()

	if *register {
		if err := registerBundle(idx, result.Bundle, cfg.RegistryPath); err != nil {
			printError(fmt.Sprintf("persisting registry: %v", err))
			os.Exit(1)
		}
	}

	writeBundle(result.Bundle, *outPath)
	logging.AuditEnrollment(ctx, string(result.Bundle.DID), true, map[string]interface{}{"fingers": len(result.Bundle.Helpers)})
	fmt.Printf("%sEnrolled%s %s\n", c.Green, c.Reset, result.Bundle.DID)
}

func writeBundle(bundle metadata.Bundle, outPath string) {
	encoded, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		printError(fmt.Sprintf("marshal bundle: %v", err))
		os.Exit(1)
	}
	encoded = append(encoded, '\n')

	if outPath == "" {
		os.Stdout.Write(encoded)
		return
	}
	if err := security.ValidateFilename(filepath.Base(outPath)); err != nil {
		printError(fmt.Sprintf("invalid bundle output filename: %v", err))
		os.Exit(1)
	}
	if _, err := security.BundlePathValidator().ValidatePath(outPath); err != nil {
		printError(fmt.Sprintf("invalid bundle output path: %v", err))
		os.Exit(1)
	}
	if err := security.WriteSecureFile(outPath, encoded, security.PermPublicFile); err != nil {
		printError(fmt.Sprintf("write bundle file: %v", err))
		os.Exit(1)
	}
}

func loadBundle(path string) metadata.Bundle {
	data, err := os.ReadFile(path)
	if err != nil {
		printError(fmt.Sprintf("read bundle file: %v", err))
		os.Exit(1)
	}
	var bundle metadata.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		printError(fmt.Sprintf("parse bundle file: %v", err))
		os.Exit(1)
	}
	return bundle
}

func fetchHelper(cfg *config.Config, bundle metadata.Bundle, fingerID quantizer.FingerID, ref metadata.HelperRef) ([]byte, error) {
	if bundle.HelperStorage == metadata.Inline {
		if len(ref.InlineBytes) == 0 {
			return nil, fmt.Errorf("finger %s: no inline helper bytes in bundle", fingerID)
		}
		return ref.InlineBytes, nil
	}

	adapter, err := storage.NewFilesystemAdapter(cfg.HelperStoreDir)
	if err != nil {
		return nil, err
	}
	var hash [32]byte
	copy(hash[:], ref.IntegrityHash)
	return adapter.Fetch(storage.Ref{Backend: storage.BackendFilesystem, URI: ref.URI, IntegrityHash: hash})
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	network := fs.String("network", "mainnet", "network tag the bundle was enrolled under")
	if err := fs.Parse(args); err != nil {
		printError(fmt.Sprintf("parsing flags: %v", err))
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		printError("Usage: biocorectl verify <captures.json> <bundle.json>")
		os.Exit(1)
	}

	cfg := loadConfig()
	captures, err := loadCaptures(fs.Arg(0))
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	bundle := loadBundle(fs.Arg(1))

	helpers := make(map[quantizer.FingerID]fuzzyextractor.HelperData, len(bundle.Helpers))
	for fingerID, ref := range bundle.Helpers {
		raw, err := fetchHelper(cfg, bundle, fingerID, ref)
		if err != nil {
			printError(fmt.Sprintf("fetch helper for finger %s: %v", fingerID, err))
			os.Exit(1)
		}
		helper, err := biocore.DecodeHelper(raw)
		if err != nil {
			printError(fmt.Sprintf("decode helper for finger %s: %v", fingerID, err))
			os.Exit(1)
		}
		helpers[fingerID] = helper
	}

	ctx := context.Background()
	result, err := biocore.Verify(ctx, captures, helpers, bundle, biocore.VerifyOptions{
		Network:           parseNetwork(*network),
		AggregationPolicy: aggregator.Policy{MinFingers: cfg.MinFingers, PreferredFingers: cfg.PreferredFingers, QualityFallback: aggregator.DefaultPolicy().QualityFallback},
		Mode:              biocore.Production,
	})
	if err != nil {
		logging.AuditVerification(ctx, string(bundle.DID), false, auditErrorDetails(err))
		printError(fmt.Sprintf("verification failed: %v", err))
		os.Exit(1)
	}

	logging.AuditVerification(ctx, string(result.DID), result.Matched, nil)
	if result.Matched {
		fmt.Printf("%sMATCH%s   %s\n", c.Bold+c.Green, c.Reset, result.DID)
	} else {
		fmt.Printf("%sNO MATCH%s\n", c.Bold+c.Red, c.Reset)
		os.Exit(1)
	}
}

func cmdRevoke(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	outPath := fs.String("out", "", "output bundle path (default stdout)")
	if err := fs.Parse(args); err != nil {
		printError(fmt.Sprintf("parsing flags: %v", err))
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		printError("Usage: biocorectl revoke <bundle.json> <signer-address>")
		os.Exit(1)
	}

	bundle := loadBundle(fs.Arg(0))
	ctx := context.Background()
	revoked, err := biocore.RevokeBundle(bundle, fs.Arg(1))
	if err != nil {
		logging.AuditError(ctx, "revoke", err, auditErrorDetails(err))
		printError(fmt.Sprintf("revocation failed: %v", err))
		os.Exit(1)
	}

	writeBundle(revoked, *outPath)
	logging.AuditRevocation(ctx, string(revoked.DID), "signer_requested")
	fmt.Printf("%sRevoked%s %s\n", c.Yellow, c.Reset, revoked.DID)
}

func cmdRotate(args []string) {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	outPath := fs.String("out", "", "write the new master key (hex) to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		printError(fmt.Sprintf("parsing flags: %v", err))
		os.Exit(1)
	}
	if fs.NArg() < 3 {
		printError("Usage: biocorectl rotate <old-master-hex> <old-finger-key-hex> <new-finger-key-hex>")
		os.Exit(1)
	}

	oldMaster, err := decodeKeyHex(fs.Arg(0))
	if err != nil {
		printError(fmt.Sprintf("old master key: %v", err))
		os.Exit(1)
	}
	oldFingerKey, err := decodeKeyHex(fs.Arg(1))
	if err != nil {
		printError(fmt.Sprintf("old finger key: %v", err))
		os.Exit(1)
	}
	newFingerKey, err := decodeKeyHex(fs.Arg(2))
	if err != nil {
		printError(fmt.Sprintf("new finger key: %v", err))
		os.Exit(1)
	}

	newMaster := biocore.RotateFinger(aggregator.MasterKey(oldMaster), oldFingerKey, newFingerKey)
	logging.AuditRotation(context.Background(), "", "", true, nil)

	if *outPath == "" {
		fmt.Printf("%sNew master key%s %x\n", c.Green, c.Reset, newMaster)
		return
	}
	if err := security.ValidateFilename(filepath.Base(*outPath)); err != nil {
		printError(fmt.Sprintf("invalid output filename: %v", err))
		os.Exit(1)
	}
	if err := security.WriteSecureFile(*outPath, []byte(hex.EncodeToString(newMaster[:])), security.PermSecretFile); err != nil {
		printError(fmt.Sprintf("write master key file: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%sNew master key written to%s %s\n", c.Green, c.Reset, *outPath)
}

func cmdInspectBundle(path string) {
	bundle := loadBundle(path)

	printSection("BUNDLE")
	fmt.Printf("  %sDID%s            %s\n", c.Dim, c.Reset, bundle.DID)
	fmt.Printf("  %sVersion%s        %s\n", c.Dim, c.Reset, bundle.Version)
	fmt.Printf("  %sControllers%s    %v\n", c.Dim, c.Reset, bundle.Controllers)
	fmt.Printf("  %sHelper storage%s %s\n", c.Dim, c.Reset, bundle.HelperStorage)
	fmt.Printf("  %sFingers%s        %d\n", c.Dim, c.Reset, len(bundle.Helpers))
	fmt.Printf("  %sEnrolled%s       %s\n", c.Dim, c.Reset, bundle.EnrollmentTimestamp)
	fmt.Printf("  %sPolicy%s         min=%d preferred=%d\n", c.Dim, c.Reset,
		bundle.AggregationPolicy.MinFingers, bundle.AggregationPolicy.PreferredFingers)

	if bundle.Revoked {
		fmt.Printf("  %sStatus%s        %s%sREVOKED%s", c.Dim, c.Reset, c.Bold, c.Red, c.Reset)
		if bundle.RevocationTimestamp != nil {
			fmt.Printf(" at %s", bundle.RevocationTimestamp)
		}
		fmt.Println()
	} else {
		fmt.Printf("  %sStatus%s        %s%sACTIVE%s\n", c.Dim, c.Reset, c.Bold, c.Green, c.Reset)
	}
}
