package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/lydakis/godot-mcp/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns an empty Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path. ${ENV_VAR}
// placeholders in string fields are expanded from the current process
// environment; unresolved placeholders are left as-is.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	expandConfigEnvVars(&cfg)
	return &cfg, nil
}

// ApplyEnv overlays GODOT_MCP_* environment variables onto cfg. A
// malformed numeric variable is an error rather than a silent fallback.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("GODOT_MCP_PROJECT"); v != "" {
		cfg.ProjectPath = v
	}
	if v := os.Getenv("GODOT_MCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GODOT_MCP_PORT: invalid port %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("GODOT_MCP_LAUNCH_COMMAND"); v != "" {
		cfg.LaunchCommand = v
	}
	if v := os.Getenv("GODOT_MCP_CONNECT_TIMEOUT"); v != "" {
		cfg.ConnectTimeout = v
	}
	if v := os.Getenv("GODOT_MCP_COMMAND_TIMEOUT"); v != "" {
		cfg.CommandTimeout = v
	}
	if v := os.Getenv("GODOT_MCP_LOG"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.ProjectPath = expandEnvVars(cfg.ProjectPath)
	cfg.LaunchCommand = expandEnvVars(cfg.LaunchCommand)
	cfg.ConnectTimeout = expandEnvVars(cfg.ConnectTimeout)
	cfg.CommandTimeout = expandEnvVars(cfg.CommandTimeout)
	cfg.LogLevel = expandEnvVars(cfg.LogLevel)
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
