package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// JSON writes v indented with two spaces.
func JSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// YAML writes v as a YAML document.
func YAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteFile renders into memory, then replaces path atomically.
func WriteFile(path string, render func(io.Writer) error) error {
	var buf strings.Builder
	if err := render(&buf); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, strings.NewReader(buf.String())); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
