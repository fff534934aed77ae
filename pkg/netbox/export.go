package netbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeExport reads a saved API response: either a bare JSON array of
// objects or a list page with a "results" array.
func DecodeExport[T any](r io.Reader) ([]T, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty export")
	}

	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decoding export: %w", err)
		}
		return items, nil
	}

	var p page[T]
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding export: %w", err)
	}
	if p.Results == nil {
		return nil, fmt.Errorf("export has no results array")
	}
	return p.Results, nil
}
