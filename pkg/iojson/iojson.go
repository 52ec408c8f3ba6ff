// Package iojson writes JSON output for command line consumers.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// Error is the JSON shape of a command failure.
type Error struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Write encodes obj as indented JSON followed by a newline.
func Write(w io.Writer, obj any) error {
	bits, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// WriteLine encodes obj as a single JSON line, for streaming output.
func WriteLine(w io.Writer, obj any) error {
	bits, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// WriteError writes err as an Error object.
func WriteError(w io.Writer, err error, data map[string]any) error {
	return Write(w, Error{Message: err.Error(), Data: data})
}
