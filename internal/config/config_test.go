package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Transport == nil || *cfg.Transport != TransportUART {
		t.Errorf("Expected Transport uart, got %v", cfg.Transport)
	}
	if cfg.GetMaxPayloadSize() != 255 {
		t.Errorf("GetMaxPayloadSize() = %d, want 255", cfg.GetMaxPayloadSize())
	}
	if cfg.GetMaxPacketSize() != 64*1024 {
		t.Errorf("GetMaxPacketSize() = %d, want 65536", cfg.GetMaxPacketSize())
	}
	if cfg.GetLogMode() != LogModeFiltered {
		t.Errorf("GetLogMode() = %q, want filtered", cfg.GetLogMode())
	}
	if cfg.GetRecoveryBackoff() != 2*time.Second {
		t.Errorf("GetRecoveryBackoff() = %v, want 2s", cfg.GetRecoveryBackoff())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "ucid.json", `{
  "transport": "sim",
  "baud_rate": 921600,
  "max_payload_size": 128,
  "log_mode": "enabled",
  "pcap_dir": "/var/log/uwb",
  "pcap_max_files": 2,
  "recovery_backoff": "500ms"
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetTransport() != TransportSim {
		t.Errorf("GetTransport() = %q", cfg.GetTransport())
	}
	if cfg.GetBaudRate() != 921600 {
		t.Errorf("GetBaudRate() = %d", cfg.GetBaudRate())
	}
	if cfg.GetMaxPayloadSize() != 128 {
		t.Errorf("GetMaxPayloadSize() = %d", cfg.GetMaxPayloadSize())
	}
	if cfg.GetLogMode() != LogModeEnabled {
		t.Errorf("GetLogMode() = %q", cfg.GetLogMode())
	}
	if cfg.GetPcapDir() != "/var/log/uwb" || cfg.GetPcapMaxFiles() != 2 {
		t.Errorf("pcap settings = %q, %d", cfg.GetPcapDir(), cfg.GetPcapMaxFiles())
	}
	if cfg.GetRecoveryBackoff() != 500*time.Millisecond {
		t.Errorf("GetRecoveryBackoff() = %v", cfg.GetRecoveryBackoff())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetSerialPort() != "/dev/ttyUSB0" {
		t.Errorf("GetSerialPort() = %q", cfg.GetSerialPort())
	}
	if cfg.GetSQLitePath() != "" {
		t.Errorf("GetSQLitePath() = %q, want empty", cfg.GetSQLitePath())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "ucid.yaml", `{}`, ".json extension"},
		{"bad json", "ucid.json", `{"transport":`, "parse config JSON"},
		{"bad transport", "ucid.json", `{"transport": "usb"}`, "transport must be"},
		{"bad log mode", "ucid.json", `{"log_mode": "verbose"}`, "log_mode must be"},
		{"payload too large", "ucid.json", `{"max_payload_size": 300}`, "max_payload_size"},
		{"payload zero", "ucid.json", `{"max_payload_size": 0}`, "max_payload_size"},
		{"packet too small", "ucid.json", `{"max_packet_size": 100}`, "max_packet_size"},
		{"bad backoff", "ucid.json", `{"recovery_backoff": "soon"}`, "recovery_backoff"},
		{"grpc without target", "ucid.json", `{"transport": "grpc"}`, "grpc_target"},
		{"no pcap files", "ucid.json", `{"pcap_max_files": 0}`, "pcap_max_files"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"serial_port": "` + strings.Repeat("x", 1024*1024) + `"}`
	if _, err := Load(writeConfig(t, "big.json", body)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v, want too large", err)
	}
}

func TestGetRecoveryBackoff_Unparseable(t *testing.T) {
	cfg := &Config{RecoveryBackoff: ptrString("later")}
	if got := cfg.GetRecoveryBackoff(); got != 2*time.Second {
		t.Errorf("GetRecoveryBackoff() = %v, want default", got)
	}
}
