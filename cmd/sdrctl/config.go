package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kmorris/sdrctl/internal/client"
	"github.com/kmorris/sdrctl/internal/transport"
)

// runtimeConfig carries the session tuning knobs that live alongside the
// receiver settings in the same toml file. Absent keys keep their defaults.
type runtimeConfig struct {
	Client client.Config
	TCP    struct {
		ConnectTimeout     time.Duration
		WriteTimeout       time.Duration
		MaxConnectAttempts int
	}
}

type fileRuntime struct {
	AckTimeout         string `toml:"ack_timeout"`
	SampleBuffer       int    `toml:"sample_buffer"`
	ConnectTimeout     string `toml:"connect_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := runtimeConfig{Client: client.DefaultConfig()}
	tcpDefaults := transport.DefaultTCPConfig("")
	cfg.TCP.ConnectTimeout = tcpDefaults.ConnectTimeout
	cfg.TCP.WriteTimeout = tcpDefaults.WriteTimeout
	cfg.TCP.MaxConnectAttempts = tcpDefaults.MaxConnectAttempts

	var raw fileRuntime
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load runtime config: %w", err)
	}

	if meta.IsDefined("ack_timeout") {
		d, err := parseDuration(raw.AckTimeout)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse ack_timeout: %w", err)
		}
		cfg.Client.AckTimeout = d
	}
	if meta.IsDefined("sample_buffer") {
		cfg.Client.SampleBuffer = raw.SampleBuffer
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration(raw.ConnectTimeout)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.TCP.ConnectTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration(raw.WriteTimeout)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.TCP.WriteTimeout = d
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.TCP.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	return cfg, nil
}

func parseDuration(raw string) (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(raw))
}
