package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MaxUploadBytes != 20971520 {
		t.Errorf("MaxUploadBytes = %d, want 20 MB", cfg.MaxUploadBytes)
	}
	if cfg.TranscribeWorkers != 4 {
		t.Errorf("TranscribeWorkers = %d", cfg.TranscribeWorkers)
	}
	if cfg.TokenTTL != 720*time.Hour {
		t.Errorf("TokenTTL = %s", cfg.TokenTTL)
	}
	if cfg.S3.Enabled() {
		t.Error("S3 should be disabled by default")
	}
}

func TestLoad_EnvAndOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ASR_TIMEOUT", "45s")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env", HTTPAddr: ":7777"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// CLI flag beats env var.
	if cfg.HTTPAddr != ":7777" {
		t.Errorf("HTTPAddr = %q, want override :7777", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ASRTimeout != 45*time.Second {
		t.Errorf("ASRTimeout = %s", cfg.ASRTimeout)
	}
}

func TestAllowedExtensions(t *testing.T) {
	cfg := &Config{AllowedExts: " WAV, mp3 ,,m4a "}
	got := cfg.AllowedExtensions()
	want := []string{"wav", "mp3", "m4a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllowedExtensions = %v, want %v", got, want)
	}
}
