package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompt is shown before reading interactive input.
const Prompt = "Please input comma-separated identifiers: "

// InteractiveReader asks for a comma-separated list on one line.
type InteractiveReader struct {
	in     io.Reader
	out    io.Writer
	filter *Filter
}

// NewInteractiveReader creates a reader prompting on out and reading from in.
func NewInteractiveReader(in io.Reader, out io.Writer, filter *Filter) *InteractiveReader {
	return &InteractiveReader{in: in, out: out, filter: filter}
}

func (r *InteractiveReader) Read(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := fmt.Fprint(r.out, Prompt); err != nil {
		return nil, fmt.Errorf("write prompt: %w", err)
	}

	line, err := bufio.NewReader(r.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("%w: input can't be empty", ErrInvalidInputContent)
	}

	parts := strings.Split(line, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, strings.TrimSpace(p))
	}
	return r.filter.Filter(ctx, ids)
}
