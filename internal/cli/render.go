package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Output formats for structured data.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case "", formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatJSON, formatYAML)
	}
}

// render formats v for display. The result ends with a newline.
func render(v any, format string) ([]byte, error) {
	switch format {
	case "", formatJSON:
		var buf bytes.Buffer

		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)

		err := enc.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("rendering json: %w", err)
		}

		return buf.Bytes(), nil

	case formatYAML:
		var buf bytes.Buffer

		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)

		err := enc.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("rendering yaml: %w", err)
		}

		err = enc.Close()
		if err != nil {
			return nil, fmt.Errorf("rendering yaml: %w", err)
		}

		return buf.Bytes(), nil

	default:
		return nil, checkFormat(format)
	}
}

// renderValue formats a single value on one line: text as-is, everything
// else as compact JSON.
func renderValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("rendering value: %w", err)
	}

	return string(data), nil
}
