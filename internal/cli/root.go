package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lydakis/godot-mcp/internal/config"
	"github.com/lydakis/godot-mcp/internal/paths"
)

const version = "0.1.0"

type rootFlags struct {
	configPath     string
	project        string
	port           int
	launchCommand  string
	connectTimeout time.Duration
	commandTimeout time.Duration
	logLevel       string
}

// Execute runs the CLI and returns an exit code.
func Execute(args []string) int {
	cmd, _ := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "godot-mcp: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() (*cobra.Command, *rootFlags) {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "godot-mcp",
		Short:         "MCP bridge for driving a Godot project",
		Long:          "godot-mcp exposes a running Godot project to MCP clients over stdio.\nIt supervises a TCP connection to the in-project bridge and launches the editor on demand.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}

	cmd.SetVersionTemplate("godot-mcp {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config.toml (default "+paths.ConfigFile()+")")
	pf.StringVar(&flags.project, "project", "", "Godot project directory")
	pf.IntVar(&flags.port, "port", config.DefaultPort, "TCP port of the bridge")
	pf.StringVar(&flags.launchCommand, "launch-command", config.DefaultLaunchCommand, "command that starts the editor")
	pf.DurationVar(&flags.connectTimeout, "connect-timeout", 0, "overall connect timeout (default "+config.DefaultConnectTimeout+")")
	pf.DurationVar(&flags.commandTimeout, "command-timeout", 0, "per-command timeout (default "+config.DefaultCommandTimeout+")")
	pf.StringVar(&flags.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")

	cmd.AddCommand(
		newServeCmd(flags),
		newInitCmd(flags),
		newVersionCmd(),
	)

	return cmd, flags
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the godot-mcp version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "godot-mcp %s\n", version)
		},
	}
}

// resolveConfig builds the effective configuration: config file, then
// GODOT_MCP_* environment variables, then explicitly set flags, then
// defaults for whatever is still unset.
func resolveConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadFrom(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	pf := cmd.Root().PersistentFlags()
	if pf.Changed("project") {
		cfg.ProjectPath = flags.project
	}
	if pf.Changed("port") {
		cfg.Port = flags.port
	}
	if pf.Changed("launch-command") {
		cfg.LaunchCommand = flags.launchCommand
	}
	if pf.Changed("connect-timeout") {
		cfg.ConnectTimeout = flags.connectTimeout.String()
	}
	if pf.Changed("command-timeout") {
		cfg.CommandTimeout = flags.commandTimeout.String()
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}

	cfg.ApplyDefaults()
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
