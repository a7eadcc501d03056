package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// MIDIConfig selects the MIDI ports the instrument uses.
type MIDIConfig struct {
	OutPort string `json:"outPort,omitempty"` // substring match; "" = first available
	InPort  string `json:"inPort,omitempty"`  // substring match; "" = any keyboard
	Channel uint8  `json:"channel"`           // 1-based output channel for live/loop voices
}

// ArpConfig is the arpeggiator's startup settings.
type ArpConfig struct {
	Latch     bool    `json:"latch"`
	Direction string  `json:"direction"` // up, down, up-down, random, played
	Range     int     `json:"range"`     // octaves 1..3
	Rate      string  `json:"rate"`      // 1/4, 1/8, 1/16, 1/32
	Gate      float64 `json:"gate"`      // 0..1
}

// Config is the main configuration structure
type Config struct {
	MIDI            MIDIConfig `json:"midi"`
	Tempo           float64    `json:"tempo"`
	CountInMeasures int        `json:"countInMeasures"` // 1..2
	LoopBars        int        `json:"loopBars"`
	Arp             ArpConfig  `json:"arp"`
	SongsDir        string     `json:"songsDir,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MIDI:            MIDIConfig{Channel: 1},
		Tempo:           120,
		CountInMeasures: 1,
		LoopBars:        4,
		Arp: ArpConfig{
			Direction: "up",
			Range:     1,
			Rate:      "1/8",
			Gate:      0.8,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-loopstation"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.clamp()

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// clamp pulls out-of-range values back to something playable rather than
// failing the load.
func (c *Config) clamp() {
	if c.Tempo < 20 || c.Tempo > 300 {
		c.Tempo = 120
	}
	if c.CountInMeasures < 1 {
		c.CountInMeasures = 1
	}
	if c.CountInMeasures > 2 {
		c.CountInMeasures = 2
	}
	if c.LoopBars < 1 {
		c.LoopBars = 4
	}
	if c.MIDI.Channel < 1 || c.MIDI.Channel > 16 {
		c.MIDI.Channel = 1
	}
	if c.Arp.Range < 1 || c.Arp.Range > 3 {
		c.Arp.Range = 1
	}
	if c.Arp.Gate <= 0 || c.Arp.Gate > 1 {
		c.Arp.Gate = 0.8
	}
}
