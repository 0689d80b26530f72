// Package config loads the optional powerselect.yaml settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up by LoadOptional
const FileName = "powerselect.yaml"

var ErrInvalid = errors.New("invalid config")

// Config represents the optional powerselect.yaml configuration.
type Config struct {
	Node   NodeConfig   `yaml:"node"`
	Toggle ToggleConfig `yaml:"toggle"`
	Server ServerConfig `yaml:"server"`
}

// NodeConfig selects which node type the extension attaches to and how it is set up.
type NodeConfig struct {
	Type         string  `yaml:"type,omitempty"`
	DefaultSlots int     `yaml:"default_slots,omitempty"`
	MinWidth     float64 `yaml:"min_width,omitempty"`
}

// ToggleConfig is the geometry of the per-slot toggle indicator, in node-local pixels.
type ToggleConfig struct {
	X               float64 `yaml:"x,omitempty"`
	HitRadius       float64 `yaml:"hit_radius,omitempty"`
	IndicatorRadius float64 `yaml:"indicator_radius,omitempty"`
}

// ServerConfig is the ComfyUI backend the example programs talk to.
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Type:         "DD_ImagePowerSelector",
			DefaultSlots: 2,
			MinWidth:     240,
		},
		Toggle: ToggleConfig{
			X:               75,
			HitRadius:       12,
			IndicatorRadius: 5,
		},
		Server: ServerConfig{
			Address: "localhost",
			Port:    8188,
		},
	}
}

// Load reads the config file at path and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return Parse(data)
}

// LoadOptional reads powerselect.yaml from dir if present.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML config data and fills unset fields with defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	c.Node.Type = strings.TrimSpace(c.Node.Type)
	if c.Node.Type == "" {
		c.Node.Type = d.Node.Type
	}
	if c.Node.DefaultSlots == 0 {
		c.Node.DefaultSlots = d.Node.DefaultSlots
	}
	if c.Node.MinWidth == 0 {
		c.Node.MinWidth = d.Node.MinWidth
	}
	if c.Toggle.X == 0 {
		c.Toggle.X = d.Toggle.X
	}
	if c.Toggle.HitRadius == 0 {
		c.Toggle.HitRadius = d.Toggle.HitRadius
	}
	if c.Toggle.IndicatorRadius == 0 {
		c.Toggle.IndicatorRadius = d.Toggle.IndicatorRadius
	}
	if c.Server.Address == "" {
		c.Server.Address = d.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
}

// Validate rejects settings the extension cannot work with.
func (c *Config) Validate() error {
	// at least one image slot must always exist
	if c.Node.DefaultSlots < 1 {
		return fmt.Errorf("%w: node.default_slots must be at least 1, got %d", ErrInvalid, c.Node.DefaultSlots)
	}
	if c.Toggle.HitRadius < 0 || c.Toggle.IndicatorRadius < 0 {
		return fmt.Errorf("%w: toggle radii must not be negative", ErrInvalid)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	return nil
}
