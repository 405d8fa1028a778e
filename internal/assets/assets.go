// Package assets stores uploaded vehicle media on disk. Files are
// content-addressed: the reference handed back to callers is the SHA-256 of
// the bytes, so duplicate uploads share storage and references are stable
// cache keys for provider results.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"mivvo/internal/config"
	"mivvo/internal/report"
	"mivvo/internal/services"
)

// MaxAssetBytes caps a single upload. Provider payloads embed the asset
// base64-encoded, so oversized files would blow request limits anyway.
const MaxAssetBytes = 25 << 20

var refPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Store persists assets under the configured asset directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at the configured asset directory.
func NewStore(cfg *config.Config) (*Store, error) {
	dir := strings.TrimSpace(cfg.Paths.AssetDir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "assets", "new", "asset directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put writes the asset and returns its content reference. Uploading the same
// bytes twice returns the same reference without rewriting the file.
func (s *Store) Put(data []byte, kind report.AssetKind) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrValidation, "assets", "put", "empty asset payload", nil)
	}
	if len(data) > MaxAssetBytes {
		return "", services.Wrap(services.ErrValidation, "assets", "put",
			fmt.Sprintf("asset exceeds %d byte limit", MaxAssetBytes), nil)
	}
	if err := sniff(data, kind); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])
	target := filepath.Join(s.dir, ref)
	if _, err := os.Stat(target); err == nil {
		return ref, nil
	}

	// Write-then-rename keeps partially written files out of the store.
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("stage asset: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close asset: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize asset: %w", err)
	}
	return ref, nil
}

// Read loads an asset by reference.
func (s *Store) Read(ref string) ([]byte, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, services.Wrap(services.ErrAssetMissing, "assets", "read",
			fmt.Sprintf("asset %s not found", ref), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether an asset is present on disk.
func (s *Store) Exists(ref string) bool {
	path, err := s.Path(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Path resolves a reference to its on-disk location, rejecting anything that
// is not a bare content hash.
func (s *Store) Path(ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", services.Wrap(services.ErrValidation, "assets", "path",
			fmt.Sprintf("malformed asset reference %q", ref), nil)
	}
	return filepath.Join(s.dir, ref), nil
}

// sniff checks the payload's magic bytes against the declared asset kind.
func sniff(data []byte, kind report.AssetKind) error {
	switch kind {
	case report.AssetImage:
		if isJPEG(data) || isPNG(data) || isWebP(data) {
			return nil
		}
		return services.Wrap(services.ErrValidation, "assets", "sniff",
			"image asset is not JPEG, PNG, or WebP", nil)
	case report.AssetAudio:
		if isWAV(data) || isMP3(data) || isOggOrFLAC(data) || isM4A(data) {
			return nil
		}
		return services.Wrap(services.ErrValidation, "assets", "sniff",
			"audio asset is not WAV, MP3, OGG, FLAC, or M4A", nil)
	default:
		return services.Wrap(services.ErrValidation, "assets", "sniff",
			fmt.Sprintf("unknown asset kind %q", kind), nil)
	}
}

func isJPEG(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

func isPNG(data []byte) bool {
	return len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n"
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func isOggOrFLAC(data []byte) bool {
	if len(data) >= 4 && string(data[:4]) == "OggS" {
		return true
	}
	return len(data) >= 4 && string(data[:4]) == "fLaC"
}

func isM4A(data []byte) bool {
	return len(data) >= 12 && string(data[4:8]) == "ftyp"
}
