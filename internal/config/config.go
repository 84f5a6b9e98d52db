package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where ucid looks for its configuration when no -config
// flag is given.
const DefaultConfigPath = "config/ucid.json"

// Transport names accepted by the transport field.
const (
	TransportUART = "uart"
	TransportGRPC = "grpc"
	TransportSim  = "sim"
)

// Log modes accepted by the log_mode field.
const (
	LogModeDisabled = "disabled"
	LogModeFiltered = "filtered"
	LogModeEnabled  = "enabled"
)

// Config is the daemon configuration. Every field is optional; the Get*
// methods supply defaults for anything the file leaves out.
type Config struct {
	// Chip transport
	Transport  *string `json:"transport,omitempty"` // uart, grpc or sim
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty"`
	GRPCTarget *string `json:"grpc_target,omitempty"`

	// Framing
	MaxPayloadSize *int `json:"max_payload_size,omitempty"`
	MaxPacketSize  *int `json:"max_packet_size,omitempty"`

	// Packet log
	LogMode      *string `json:"log_mode,omitempty"`
	PcapDir      *string `json:"pcap_dir,omitempty"`
	PcapMaxBytes *int64  `json:"pcap_max_bytes,omitempty"`
	PcapMaxFiles *int    `json:"pcap_max_files,omitempty"`
	SQLitePath   *string `json:"sqlite_path,omitempty"`

	// Daemon
	ListenAddr      *string `json:"listen_addr,omitempty"`
	RecoveryBackoff *string `json:"recovery_backoff,omitempty"` // duration string like "2s"
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrInt64(v int64) *int64    { return &v }

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Defaults returns a Config with every field populated with its default.
func Defaults() *Config {
	e := Empty()
	return &Config{
		Transport:       ptrString(e.GetTransport()),
		SerialPort:      ptrString(e.GetSerialPort()),
		BaudRate:        ptrInt(e.GetBaudRate()),
		DataBits:        ptrInt(e.GetDataBits()),
		StopBits:        ptrInt(e.GetStopBits()),
		Parity:          ptrString(e.GetParity()),
		GRPCTarget:      ptrString(e.GetGRPCTarget()),
		MaxPayloadSize:  ptrInt(e.GetMaxPayloadSize()),
		MaxPacketSize:   ptrInt(e.GetMaxPacketSize()),
		LogMode:         ptrString(e.GetLogMode()),
		PcapDir:         ptrString(e.GetPcapDir()),
		PcapMaxBytes:    ptrInt64(e.GetPcapMaxBytes()),
		PcapMaxFiles:    ptrInt(e.GetPcapMaxFiles()),
		SQLitePath:      ptrString(e.GetSQLitePath()),
		ListenAddr:      ptrString(e.GetListenAddr()),
		RecoveryBackoff: ptrString(e.GetRecoveryBackoff().String()),
	}
}

// Load reads a Config from a JSON file. The file must have a .json extension
// and be under 1MB. Fields omitted from the file keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Transport != nil {
		switch *c.Transport {
		case TransportUART, TransportGRPC, TransportSim:
		default:
			return fmt.Errorf("transport must be one of uart, grpc, sim; got %q", *c.Transport)
		}
	}
	if c.LogMode != nil {
		switch *c.LogMode {
		case LogModeDisabled, LogModeFiltered, LogModeEnabled:
		default:
			return fmt.Errorf("log_mode must be one of disabled, filtered, enabled; got %q", *c.LogMode)
		}
	}
	if c.MaxPayloadSize != nil && (*c.MaxPayloadSize < 1 || *c.MaxPayloadSize > 255) {
		return fmt.Errorf("max_payload_size must be between 1 and 255, got %d", *c.MaxPayloadSize)
	}
	if c.MaxPacketSize != nil && *c.MaxPacketSize < 255 {
		return fmt.Errorf("max_packet_size must be at least 255, got %d", *c.MaxPacketSize)
	}
	if c.PcapMaxBytes != nil && *c.PcapMaxBytes < 0 {
		return fmt.Errorf("pcap_max_bytes must be non-negative, got %d", *c.PcapMaxBytes)
	}
	if c.PcapMaxFiles != nil && *c.PcapMaxFiles < 1 {
		return fmt.Errorf("pcap_max_files must be at least 1, got %d", *c.PcapMaxFiles)
	}
	if c.RecoveryBackoff != nil && *c.RecoveryBackoff != "" {
		if _, err := time.ParseDuration(*c.RecoveryBackoff); err != nil {
			return fmt.Errorf("invalid recovery_backoff '%s': %w", *c.RecoveryBackoff, err)
		}
	}
	if c.GetTransport() == TransportGRPC && c.GetGRPCTarget() == "" {
		return fmt.Errorf("grpc transport requires grpc_target")
	}
	return nil
}

// GetTransport returns the transport value or the default.
func (c *Config) GetTransport() string {
	if c.Transport == nil {
		return TransportUART
	}
	return *c.Transport
}

// GetSerialPort returns the serial_port value or the default.
func (c *Config) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

func (c *Config) GetDataBits() int {
	if c.DataBits == nil {
		return 8
	}
	return *c.DataBits
}

func (c *Config) GetStopBits() int {
	if c.StopBits == nil {
		return 1
	}
	return *c.StopBits
}

func (c *Config) GetParity() string {
	if c.Parity == nil {
		return "N"
	}
	return *c.Parity
}

func (c *Config) GetGRPCTarget() string {
	if c.GRPCTarget == nil {
		return ""
	}
	return *c.GRPCTarget
}

// GetMaxPayloadSize returns the outbound fragment payload limit or the default.
func (c *Config) GetMaxPayloadSize() int {
	if c.MaxPayloadSize == nil {
		return 255
	}
	return *c.MaxPayloadSize
}

// GetMaxPacketSize returns the reassembly limit or the default.
func (c *Config) GetMaxPacketSize() int {
	if c.MaxPacketSize == nil {
		return 64 * 1024
	}
	return *c.MaxPacketSize
}

// GetLogMode returns the log_mode value or the default.
func (c *Config) GetLogMode() string {
	if c.LogMode == nil {
		return LogModeFiltered
	}
	return *c.LogMode
}

// GetPcapDir returns the packet log directory. Empty disables the pcap sink.
func (c *Config) GetPcapDir() string {
	if c.PcapDir == nil {
		return ""
	}
	return *c.PcapDir
}

func (c *Config) GetPcapMaxBytes() int64 {
	if c.PcapMaxBytes == nil {
		return 4 * 1024 * 1024
	}
	return *c.PcapMaxBytes
}

func (c *Config) GetPcapMaxFiles() int {
	if c.PcapMaxFiles == nil {
		return 4
	}
	return *c.PcapMaxFiles
}

// GetSQLitePath returns the sqlite log path. Empty disables the sqlite sink.
func (c *Config) GetSQLitePath() string {
	if c.SQLitePath == nil {
		return ""
	}
	return *c.SQLitePath
}

func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil {
		return "localhost:8090"
	}
	return *c.ListenAddr
}

// GetRecoveryBackoff parses and returns the delay before re-opening the chip
// after a hardware error.
func (c *Config) GetRecoveryBackoff() time.Duration {
	if c.RecoveryBackoff == nil || *c.RecoveryBackoff == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.RecoveryBackoff)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}
