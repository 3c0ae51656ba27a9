package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ReceiverConfig describes one device connection plus the local surfaces
// around it.
type ReceiverConfig struct {
	DeviceAddr     string   `toml:"device_addr"`
	DataListenAddr string   `toml:"data_listen_addr"`
	Channel        uint8    `toml:"channel"`
	SampleBitWidth int      `toml:"sample_bit_width"`
	FrequencyHz    uint64   `toml:"frequency_hz"`
	StatusAddr     string   `toml:"status_addr"`
	CorsOrigins    []string `toml:"cors_origins"`
}

func LoadReceiverConfig(path string) (ReceiverConfig, error) {
	var cfg ReceiverConfig
	if err := loadToml(path, &cfg); err != nil {
		return ReceiverConfig{}, err
	}
	if cfg.DataListenAddr == "" {
		cfg.DataListenAddr = ":50010"
	}
	if cfg.SampleBitWidth == 0 {
		cfg.SampleBitWidth = 16
	}
	if err := ValidateReceiverConfig(cfg); err != nil {
		return ReceiverConfig{}, err
	}
	return cfg, nil
}

func ValidateReceiverConfig(cfg ReceiverConfig) error {
	if strings.TrimSpace(cfg.DeviceAddr) == "" {
		return fmt.Errorf("receiver config missing device_addr")
	}
	if strings.TrimSpace(cfg.DataListenAddr) == "" {
		return fmt.Errorf("receiver config missing data_listen_addr")
	}
	if cfg.SampleBitWidth < 1 || cfg.SampleBitWidth > 32 {
		return fmt.Errorf("receiver config sample_bit_width %d outside 1..32", cfg.SampleBitWidth)
	}
	if cfg.FrequencyHz >= 1<<40 {
		return fmt.Errorf("receiver config frequency_hz %d exceeds 40-bit device range", cfg.FrequencyHz)
	}
	return nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
