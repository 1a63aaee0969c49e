// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "NVX_CONFIG"

// DefaultPath is read by [Load] when NVX_CONFIG is unset.
const DefaultPath = "/etc/nvx.yaml"

// Config is the master configuration for nvx.
type Config struct {
	// SocketPath is the control socket.
	// Default: /tmp/nvx.sock
	SocketPath string `yaml:"socket_path"`

	// LogPath receives a copy of the daemon's log. Empty disables the
	// file; stderr is always written.
	// Default: /var/log/nvx.log
	LogPath string `yaml:"log_path"`

	// JournalPath records an in-progress power transition. Empty
	// disables the journal.
	// Default: /run/nvx.journal
	JournalPath string `yaml:"journal_path"`

	// CommandTimeout bounds every external tool invocation (lshw,
	// modprobe, lsof).
	// Default: 30s
	CommandTimeout string `yaml:"command_timeout"`

	// SysRoot is the sysfs mount. Tests point it at a scratch directory.
	// Default: /sys
	SysRoot string `yaml:"sys_root"`

	// Device selects the managed GPU.
	Device DeviceConfig `yaml:"device"`

	// Modules configures kernel module sequencing.
	Modules ModulesConfig `yaml:"modules"`

	// KillOnOff reclaims the device (SIGTERM to every holder) before a
	// power-off.
	// Default: false
	KillOnOff bool `yaml:"kill_on_off"`

	// EGLVendorPath is the NVIDIA EGL vendor file patched at boot so
	// applications default to the integrated GPU. Empty disables the
	// override.
	EGLVendorPath string `yaml:"egl_vendor_path"`

	// Tools names the external binaries.
	Tools ToolsConfig `yaml:"tools"`

	// Census configures which device files the process census inspects.
	Census CensusConfig `yaml:"census"`
}

// DeviceConfig selects topology nodes by class and vendor.
type DeviceConfig struct {
	// Classes are lshw class names, matched exactly (case-insensitive).
	// Default: [display]
	Classes []string `yaml:"classes"`

	// Vendors are substrings of the lshw vendor field
	// (case-insensitive).
	// Default: [nvidia]
	Vendors []string `yaml:"vendors"`
}

// ModulesConfig configures kernel module sequencing.
type ModulesConfig struct {
	// Sequence is the load order. An entry may carry parameters after
	// the module name ("nvidia_drm modeset=1"). Unloading walks the
	// sequence in reverse.
	Sequence []string `yaml:"sequence"`

	// Inbox is the distribution's stock driver, never loaded by nvx.
	// Default: nouveau
	Inbox string `yaml:"inbox"`
}

// ToolsConfig names the external binaries.
type ToolsConfig struct {
	// Topology is the full argv of the topology tool. Empty uses the
	// built-in lshw invocation.
	Topology []string `yaml:"topology"`

	// Modprobe is the module loader.
	// Default: modprobe
	Modprobe string `yaml:"modprobe"`

	// Lsof is the census tool.
	// Default: lsof
	Lsof string `yaml:"lsof"`
}

// CensusConfig selects the device files the census inspects.
type CensusConfig struct {
	// DeviceGlob is expanded with filepath.Glob.
	// Default: /dev/nvidia*
	DeviceGlob string `yaml:"device_glob"`

	// ControlNodes are shared control files that every GPU client
	// opens. Processes holding only these are left out of ps.
	// Default: [/dev/nvidiactl]
	ControlNodes []string `yaml:"control_nodes"`
}

// Default returns the default configuration: the proprietary NVIDIA
// driver stack on a hybrid laptop.
func Default() *Config {
	return &Config{
		SocketPath:     "/tmp/nvx.sock",
		LogPath:        "/var/log/nvx.log",
		JournalPath:    "/run/nvx.journal",
		CommandTimeout: "30s",
		SysRoot:        "/sys",
		Device: DeviceConfig{
			Classes: []string{"display"},
			Vendors: []string{"nvidia"},
		},
		Modules: ModulesConfig{
			Sequence: []string{"nvidia", "nvidia_modeset", "nvidia_uvm", "nvidia_drm modeset=1"},
			Inbox:    "nouveau",
		},
		Tools: ToolsConfig{
			Modprobe: "modprobe",
			Lsof:     "lsof",
		},
		Census: CensusConfig{
			DeviceGlob:   "/dev/nvidia*",
			ControlNodes: []string{"/dev/nvidiactl"},
		},
	}
}

// Load loads configuration from the NVX_CONFIG environment variable.
// When it is unset, DefaultPath is loaded if present; otherwise the
// defaults are returned.
func Load() (*Config, error) {
	if configPath := os.Getenv(EnvironmentVariable); configPath != "" {
		return LoadFile(configPath)
	}

	if _, err := os.Stat(DefaultPath); err == nil {
		return LoadFile(DefaultPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking %s: %w", DefaultPath, err)
	}

	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile loads configuration from a specific file path. Fields the
// file omits keep their defaults. A missing file is an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.SocketPath = expandVars(c.SocketPath, vars)
	c.LogPath = expandVars(c.LogPath, vars)
	c.JournalPath = expandVars(c.JournalPath, vars)
	c.SysRoot = expandVars(c.SysRoot, vars)
	c.EGLVendorPath = expandVars(c.EGLVendorPath, vars)
	c.Census.DeviceGlob = expandVars(c.Census.DeviceGlob, vars)
	for i, node := range c.Census.ControlNodes {
		c.Census.ControlNodes[i] = expandVars(node, vars)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Timeout returns CommandTimeout as a duration.
func (c *Config) Timeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.CommandTimeout)
	if err != nil {
		return 0, fmt.Errorf("command_timeout: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout)
	}
	return timeout, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.SocketPath == "" {
		errs = append(errs, fmt.Errorf("socket_path is required"))
	} else if !filepath.IsAbs(c.SocketPath) {
		errs = append(errs, fmt.Errorf("socket_path must be absolute, got %q", c.SocketPath))
	}

	if c.SysRoot == "" {
		errs = append(errs, fmt.Errorf("sys_root is required"))
	}

	if _, err := c.Timeout(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Device.Classes) == 0 {
		errs = append(errs, fmt.Errorf("device.classes must name at least one class"))
	}
	if !slices.ContainsFunc(c.Device.Vendors, func(vendor string) bool { return strings.TrimSpace(vendor) != "" }) {
		errs = append(errs, fmt.Errorf("device.vendors must name at least one vendor"))
	}

	for i, entry := range c.Modules.Sequence {
		if strings.TrimSpace(entry) == "" {
			errs = append(errs, fmt.Errorf("modules.sequence[%d] is empty", i))
		}
	}

	if c.Tools.Modprobe == "" {
		errs = append(errs, fmt.Errorf("tools.modprobe is required"))
	}
	if c.Tools.Lsof == "" {
		errs = append(errs, fmt.Errorf("tools.lsof is required"))
	}

	if c.Census.DeviceGlob == "" {
		errs = append(errs, fmt.Errorf("census.device_glob is required"))
	} else if _, err := filepath.Match(c.Census.DeviceGlob, ""); err != nil {
		errs = append(errs, fmt.Errorf("census.device_glob %q: %w", c.Census.DeviceGlob, err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
