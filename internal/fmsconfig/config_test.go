package fmsconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	cfg := Load("")
	if cfg.TCPPort != 1750 {
		t.Fatalf("expected default tcp port 1750, got %d", cfg.TCPPort)
	}
	if cfg.UDPInPort != 1160 || cfg.UDPOutPort != 1121 {
		t.Fatalf("unexpected default udp ports: in=%d out=%d", cfg.UDPInPort, cfg.UDPOutPort)
	}
	if cfg.DefaultStationStatusGood {
		t.Fatalf("expected default station status to default to bad (strict reading)")
	}
	if cfg.BindRetryInterval.Seconds() != 15 {
		t.Fatalf("expected 15s bind retry default, got %v", cfg.BindRetryInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "tcp_port: 9000\ndefault_station_status_good: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)
	if cfg.TCPPort != 9000 {
		t.Fatalf("expected tcp_port from file, got %d", cfg.TCPPort)
	}
	if !cfg.DefaultStationStatusGood {
		t.Fatalf("expected default_station_status_good from file to be true")
	}
}

func TestToFieldConfigConversion(t *testing.T) {
	resetViper(t)
	cfg := Load("")
	fc := cfg.ToFieldConfig()
	if fc.TCPPort != cfg.TCPPort {
		t.Fatalf("tcp port mismatch after conversion")
	}
	if fc.DSAddress == nil {
		t.Fatalf("expected DSAddress to parse from default 0.0.0.0")
	}
}

func TestSaveExampleConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "example.yaml")
	if err := SaveExampleConfig(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty example config")
	}
}
