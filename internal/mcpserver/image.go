package mcpserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// pngSignature is the first four bytes of every PNG file.
var pngSignature = []byte{0x89, 'P', 'N', 'G'}

// validateImagePayload checks that an image payload is valid base64 and
// starts with the PNG signature. A failure here is surfaced as a warning
// in the tool result, never as a protocol error.
func validateImagePayload(encoded string) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("image payload is not valid base64: %w", err)
	}
	if len(raw) < len(pngSignature) || !bytes.Equal(raw[:len(pngSignature)], pngSignature) {
		return errors.New("image payload does not carry a PNG signature")
	}
	return nil
}

// renderData pretty-prints an opaque result payload for the text half of
// a tool result.
func renderData(data json.RawMessage) string {
	if len(data) == 0 {
		return "Command succeeded."
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return string(data)
	}
	return out.String()
}
