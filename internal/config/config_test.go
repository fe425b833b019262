package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "link.ini")
	contents := "[link]\nsend_id = 0x123\nblock_size = 4\npadding = true\npad_byte = 0xAA\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SendID != 0x123 {
		t.Errorf("expected send_id 0x123, got %#x", cfg.SendID)
	}
	if cfg.BlockSize != 4 {
		t.Errorf("expected block_size 4, got %v", cfg.BlockSize)
	}
	if !cfg.Padding {
		t.Error("expected padding true")
	}
	if cfg.PadByte != 0xAA {
		t.Errorf("expected pad_byte 0xAA, got %#x", cfg.PadByte)
	}
	// Untouched keys keep their defaults.
	if cfg.ReceiveID != Default().ReceiveID {
		t.Errorf("expected receive_id to stay at default, got %#x", cfg.ReceiveID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Error("expected an error loading a missing file")
	}
}

func TestLoadWithoutLinkSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.ini")
	if err := os.WriteFile(path, []byte("[other]\nfoo = bar\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults when [link] is absent, got %+v", cfg)
	}
}
