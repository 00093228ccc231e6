package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileReader reads a JSON array of identifier strings from a file.
type FileReader struct {
	path   string
	filter *Filter
}

// NewFileReader creates a FileReader for path.
func NewFileReader(path string, filter *Filter) *FileReader {
	return &FileReader{path: path, filter: filter}
}

// Path returns the source file path.
func (r *FileReader) Path() string { return r.path }

func (r *FileReader) Read(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", r.path, err)
	}
	ids, err := DecodeIdentifiers(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	return r.filter.Filter(ctx, ids)
}

// DecodeIdentifiers decodes a non-empty JSON array of strings.
func DecodeIdentifiers(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("%w: input must be a JSON array of strings: %v", ErrInvalidInputContent, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: input must contain a non-empty array", ErrInvalidInputContent)
	}
	return ids, nil
}
