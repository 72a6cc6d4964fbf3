// Package mcpserver exposes the Godot bridge to MCP clients as three
// tools: godot_connect, godot_command, and godot_status. It is a thin
// translation layer; all connection and process state lives in the
// engine behind it.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lydakis/godot-mcp/internal/godot"
)

// Engine is the connection-manager surface the tools drive.
type Engine interface {
	Connect(ctx context.Context, opts godot.ConnectOptions) ([]godot.CommandInfo, error)
	Send(ctx context.Context, command string, args map[string]any, timeout time.Duration) *godot.Response
	State() godot.State
	AvailableCommands() []godot.CommandInfo
	ProcessRunning() bool
}

var _ Engine = (*godot.Client)(nil)

// New builds the MCP server with the godot tool surface registered.
func New(engine Engine, log *slog.Logger, version string) *server.MCPServer {
	if log == nil {
		log = slog.Default()
	}

	s := server.NewMCPServer("godot-mcp", version)
	s.AddTool(connectTool(), handleConnect(engine, log))
	s.AddTool(commandTool(), handleCommand(engine, log))
	s.AddTool(statusTool(), handleStatus(engine))
	return s
}

func connectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "godot_connect",
		Description: "Connect to the Godot bridge, launching the editor when nothing is listening yet. Returns the commands the project advertises.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project_path": map[string]any{
					"type":        "string",
					"description": "Godot project directory. Optional when configured on the server.",
				},
				"port": map[string]any{
					"type":        "number",
					"description": "TCP port of the bridge (default 6789).",
				},
				"timeout_ms": map[string]any{
					"type":        "number",
					"description": "Overall connect timeout in milliseconds (default 5000).",
				},
				"restart": map[string]any{
					"type":        "boolean",
					"description": "Tear down any existing connection and editor process first.",
				},
			},
		},
	}
}

func commandTool() mcp.Tool {
	return mcp.Tool{
		Name:        "godot_command",
		Description: "Send a command to the connected Godot project and return its result. Image results are returned as PNG content blocks.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Command name, as advertised by godot_connect.",
				},
				"args": map[string]any{
					"type":        "object",
					"description": "Command arguments.",
				},
				"timeout_ms": map[string]any{
					"type":        "number",
					"description": "Per-command timeout in milliseconds (default 10000).",
				},
			},
			Required: []string{"command"},
		},
	}
}

func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "godot_status",
		Description: "Report the bridge connection state, whether a launched editor process is running, and the cached command list.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}

func handleConnect(engine Engine, log *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := godot.ConnectOptions{
			ProjectPath: request.GetString("project_path", ""),
			Port:        request.GetInt("port", 0),
			Restart:     request.GetBool("restart", false),
		}
		if ms := request.GetInt("timeout_ms", 0); ms > 0 {
			opts.Timeout = time.Duration(ms) * time.Millisecond
		}

		cmds, err := engine.Connect(ctx, opts)
		if err != nil {
			log.Warn("connect failed", "err", err)
			return mcp.NewToolResultError(fmt.Sprintf("Failed to connect to Godot: %v", err)), nil
		}
		return mcp.NewToolResultText(renderCommands(cmds)), nil
	}
}

func handleCommand(engine Engine, log *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		command, err := request.RequireString("command")
		if err != nil {
			return mcp.NewToolResultError("Missing required argument: command"), nil
		}

		var args map[string]any
		if raw, ok := request.GetArguments()["args"].(map[string]any); ok {
			args = raw
		}

		var timeout time.Duration
		if ms := request.GetInt("timeout_ms", 0); ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}

		resp := engine.Send(ctx, command, args, timeout)
		if !resp.Success {
			msg := resp.Error
			if msg == "" {
				msg = fmt.Sprintf("Command %q failed", command)
			}
			return mcp.NewToolResultError(msg), nil
		}

		text := renderData(resp.Data)
		if resp.Image == "" {
			return mcp.NewToolResultText(text), nil
		}

		if verr := validateImagePayload(resp.Image); verr != nil {
			log.Warn("ignoring image payload", "command", command, "err", verr)
			return mcp.NewToolResultText(text + "\nWarning: ignoring image payload: " + verr.Error()), nil
		}
		return mcp.NewToolResultImage(text, resp.Image, "image/png"), nil
	}
}

func handleStatus(engine Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cmds := engine.AvailableCommands()

		var b strings.Builder
		fmt.Fprintf(&b, "State: %s\n", engine.State())
		fmt.Fprintf(&b, "Editor process running: %t\n", engine.ProcessRunning())
		fmt.Fprintf(&b, "Cached commands: %d\n", len(cmds))
		for _, name := range commandNames(cmds) {
			fmt.Fprintf(&b, "  %s\n", name)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func renderCommands(cmds []godot.CommandInfo) string {
	if len(cmds) == 0 {
		return "Connected to Godot. The project did not advertise any commands."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Connected to Godot. %d commands available:\n", len(cmds))
	for _, cmd := range cmds {
		b.WriteString("\n" + cmd.Name)
		if desc := strings.TrimSpace(cmd.Description); desc != "" {
			b.WriteString("\t" + desc)
		}

		names := make([]string, 0, len(cmd.Args))
		for name := range cmd.Args {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			arg := cmd.Args[name]
			line := "\n  " + name
			if arg.Type != "" {
				if arg.Optional {
					line += fmt.Sprintf(" (%s, optional)", arg.Type)
				} else {
					line += fmt.Sprintf(" (%s)", arg.Type)
				}
			} else if arg.Optional {
				line += " (optional)"
			}
			if desc := strings.TrimSpace(arg.Description); desc != "" {
				line += "\t" + desc
			}
			b.WriteString(line)
		}
	}
	return b.String()
}

func commandNames(cmds []godot.CommandInfo) []string {
	names := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		names = append(names, cmd.Name)
	}
	sort.Strings(names)
	return names
}
