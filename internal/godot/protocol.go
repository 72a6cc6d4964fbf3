package godot

import (
	"encoding/json"
	"fmt"
)

// Request is sent to the Godot bridge as one JSON line.
type Request struct {
	ID      string         `json:"id"`             // correlation identifier, unique per request
	Command string         `json:"command"`        // command name, opaque to the client
	Args    map[string]any `json:"args,omitempty"` // command arguments
}

// Response is received from the Godot bridge as one JSON line.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`  // opaque result payload
	Image   string          `json:"image,omitempty"` // base64-encoded image bytes
	Error   string          `json:"error,omitempty"` // human-readable failure message
}

// ArgInfo describes a single argument of an advertised command.
type ArgInfo struct {
	Type        string `json:"type"`
	Optional    bool   `json:"optional,omitempty"`
	Description string `json:"description,omitempty"`
}

// CommandInfo describes one command advertised by the Godot bridge
// in its list_commands reply.
type CommandInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Args        map[string]ArgInfo `json:"args,omitempty"`
}

// EncodeRequest serializes a request to a single JSON line without the
// trailing newline. JSON string escaping guarantees the result contains
// no embedded line terminators.
func EncodeRequest(req *Request) ([]byte, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request %s: %w", req.ID, err)
	}
	return line, nil
}

// DecodeResponse parses one received line (terminator already stripped)
// into a Response. The id and success fields are required; a line that
// is not a JSON object or carries mistyped fields yields an error the
// caller is expected to log and drop.
func DecodeResponse(line []byte) (*Response, error) {
	var wire struct {
		ID      *string         `json:"id"`
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		Image   string          `json:"image"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(line, &wire); err != nil {
		return nil, fmt.Errorf("decoding response line: %w", err)
	}
	if wire.ID == nil {
		return nil, fmt.Errorf("response line missing %q field", "id")
	}
	if wire.Success == nil {
		return nil, fmt.Errorf("response line missing %q field", "success")
	}
	return &Response{
		ID:      *wire.ID,
		Success: *wire.Success,
		Data:    wire.Data,
		Image:   wire.Image,
		Error:   wire.Error,
	}, nil
}

// parseCommandList extracts command descriptors from a list_commands data
// payload. A structural problem yields nil rather than an error: an
// absent or malformed capability list means the commands are simply
// unknown, never that the connection failed. A well-formed payload with
// no usable entries yields an empty, non-nil list.
func parseCommandList(data json.RawMessage) []CommandInfo {
	if len(data) == 0 {
		return nil
	}

	var payload struct {
		Commands []CommandInfo `json:"commands"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	out := make([]CommandInfo, 0, len(payload.Commands))
	for _, cmd := range payload.Commands {
		if cmd.Name == "" {
			continue
		}
		out = append(out, cmd)
	}
	return out
}
