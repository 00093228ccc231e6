// Package reader produces the identifier list for a lookup run. Every reader
// passes what it reads through a Filter, so callers only ever see
// syntactically valid, de-duplicated identifiers.
package reader

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/validate"
)

var (
	// ErrInvalidInputContent means the source could not be decoded or was empty.
	ErrInvalidInputContent = errors.New("invalid input content")
	// ErrNoValidIdentifiers means every identifier failed validation.
	ErrNoValidIdentifiers = errors.New("no valid identifier found in the input")
)

// Filter drops identifiers its Validator rejects.
type Filter struct {
	validator validate.Validator
	logger    *zap.Logger
}

// NewFilter creates a Filter.
func NewFilter(v validate.Validator, logger *zap.Logger) *Filter {
	return &Filter{validator: v, logger: logging.OrNop(logger)}
}

// Filter keeps the valid identifiers in input order. Surrounding whitespace
// is trimmed and repeats are kept once. It fails with ErrNoValidIdentifiers
// when nothing survives. Log lines carry the fields stored on ctx.
func (f *Filter) Filter(ctx context.Context, identifiers []string) ([]string, error) {
	log := logging.FromContext(ctx, f.logger)
	valid := make([]string, 0, len(identifiers))
	seen := make(map[string]struct{}, len(identifiers))

	for _, raw := range identifiers {
		id := strings.TrimSpace(raw)
		if err := f.validator.Validate(id); err != nil {
			log.Warn("Invalid identifier",
				zap.String("identifier", raw),
				zap.Error(err))
			continue
		}
		if _, dup := seen[id]; dup {
			log.Debug("Duplicate identifier dropped", zap.String("identifier", id))
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}

	if len(valid) == 0 {
		return nil, ErrNoValidIdentifiers
	}
	return valid, nil
}
