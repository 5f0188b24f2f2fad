// Package api defines the MicroSplit RPC surface: procedure names, request and
// response messages, the JSON codec they travel with, and a typed client.
package api

import (
	"encoding/json"
	"fmt"
)

// Codec carries the plain Go messages of this package as JSON. It replaces
// Connect's default protobuf-JSON codec, which only handles proto messages.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
