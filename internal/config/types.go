package config

import "time"

// Defaults applied when neither the config file, the environment, nor
// flags provide a value.
const (
	DefaultPort           = 6789
	DefaultLaunchCommand  = "godot"
	DefaultConnectTimeout = "5s"
	DefaultCommandTimeout = "10s"
	DefaultLogLevel       = "info"
)

// Config is the top-level godot-mcp configuration.
type Config struct {
	// ProjectPath is the Godot project the editor is launched with. It
	// may be left empty and supplied per connect call instead.
	ProjectPath string `toml:"project_path"`

	// Port is the TCP port the bridge listens on.
	Port int `toml:"port"`

	// LaunchCommand starts the editor when nothing is listening.
	LaunchCommand string `toml:"launch_command"`

	// ConnectTimeout and CommandTimeout are duration strings ("5s",
	// "1500ms").
	ConnectTimeout string `toml:"connect_timeout"`
	CommandTimeout string `toml:"command_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// ApplyDefaults fills unset fields with the package defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.LaunchCommand == "" {
		c.LaunchCommand = DefaultLaunchCommand
	}
	if c.ConnectTimeout == "" {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CommandTimeout == "" {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// ConnectTimeoutDuration returns the parsed connect timeout, or the
// package default when the field is unset or unparsable.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(c.ConnectTimeout, DefaultConnectTimeout)
}

// CommandTimeoutDuration returns the parsed per-command timeout, or the
// package default when the field is unset or unparsable.
func (c *Config) CommandTimeoutDuration() time.Duration {
	return parseDurationOr(c.CommandTimeout, DefaultCommandTimeout)
}

func parseDurationOr(value, fallback string) time.Duration {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	d, _ := time.ParseDuration(fallback)
	return d
}
