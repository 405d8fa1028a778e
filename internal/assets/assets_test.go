package assets_test

import (
	"bytes"
	"errors"
	"testing"

	"mivvo/internal/assets"
	"mivvo/internal/report"
	"mivvo/internal/services"
	"mivvo/internal/testsupport"
)

func jpegPayload(extra string) []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte(extra)...)
}

func wavPayload() []byte {
	payload := []byte("RIFF0000WAVE")
	return append(payload, bytes.Repeat([]byte{0x01}, 32)...)
}

func TestPutAndReadRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := assets.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	data := jpegPayload("front-left")
	ref, err := store.Put(data, report.AssetImage)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(ref) != 64 {
		t.Fatalf("reference length = %d, want 64 hex chars", len(ref))
	}

	got, err := store.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read bytes differ from written bytes")
	}
}

func TestPutIsContentAddressed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := assets.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	data := jpegPayload("same bytes")
	first, err := store.Put(data, report.AssetImage)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	second, err := store.Put(data, report.AssetImage)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if first != second {
		t.Fatalf("duplicate upload returned different refs: %s vs %s", first, second)
	}
}

func TestPutRejectsWrongKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := assets.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, err := store.Put(wavPayload(), report.AssetImage); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("audio bytes as image err = %v, want ErrValidation", err)
	}
	if _, err := store.Put(jpegPayload("x"), report.AssetAudio); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("image bytes as audio err = %v, want ErrValidation", err)
	}
	if _, err := store.Put(nil, report.AssetImage); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty payload err = %v, want ErrValidation", err)
	}
}

func TestReadMissingAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := assets.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	missing := "0000000000000000000000000000000000000000000000000000000000000000"
	if _, err := store.Read(missing); !errors.Is(err, services.ErrAssetMissing) {
		t.Fatalf("err = %v, want ErrAssetMissing", err)
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := assets.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	for _, ref := range []string{"../etc/passwd", "abc", "", "ABCDEF"} {
		if _, err := store.Path(ref); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Path(%q) err = %v, want ErrValidation", ref, err)
		}
	}
}
