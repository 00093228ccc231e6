// Package pipeline wires a reader, a lookuper and a presenter into one
// lookup run without knowing which concrete strategies are plugged in.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/lookup"
	"github.com/Ashfaaq98/vt-lookup/internal/report"
	"github.com/Ashfaaq98/vt-lookup/internal/virustotal"
)

// Reader produces the validated identifiers for a run.
type Reader interface {
	Read(ctx context.Context) ([]string, error)
}

// Lookuper resolves identifiers, dropping the ones that fail.
type Lookuper interface {
	Lookup(ctx context.Context, ids []string) []virustotal.LookupResponse
}

// StatsLookuper is a Lookuper that also reports what happened to each
// batch. Manager logs its Stats when the lookuper provides them.
type StatsLookuper interface {
	Lookuper
	LookupWithStats(ctx context.Context, ids []string) ([]virustotal.LookupResponse, lookup.Stats)
}

// Presenter renders a report.
type Presenter interface {
	Present(ctx context.Context, r report.AnalysisReport) error
}

// Transformer maps lookup responses to a report.
type Transformer func([]virustotal.LookupResponse) report.AnalysisReport

// Manager runs Reader -> Lookuper -> Transformer -> Presenter.
type Manager struct {
	reader    Reader
	lookuper  Lookuper
	presenter Presenter
	transform Transformer
	logger    *zap.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithTransformer replaces report.FromLookups.
func WithTransformer(t Transformer) Option {
	return func(m *Manager) { m.transform = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// NewManager creates a Manager.
func NewManager(r Reader, l Lookuper, p Presenter, opts ...Option) *Manager {
	m := &Manager{
		reader:    r,
		lookuper:  l,
		presenter: p,
		transform: report.FromLookups,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run performs one lookup run. A reader error aborts the run before any
// lookup. A run where every lookup failed logs "no successful results",
// presents nothing and returns nil. The run id is put on ctx so every
// stage logs it.
func (m *Manager) Run(ctx context.Context) (err error) {
	runID := uuid.NewString()
	ctx = logging.WithFields(ctx, zap.String("run_id", runID))
	log := logging.FromContext(ctx, m.logger)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Lookup run panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("lookup run %s panicked: %v", runID, r)
		}
	}()

	ids, err := m.reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("read identifiers: %w", err)
	}
	log.Info("Identifiers read", zap.Int("count", len(ids)))

	results, stats := m.runLookups(ctx, ids)
	if len(results) == 0 {
		log.Warn("no successful results",
			zap.Int("identifiers", len(ids)),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped),
			zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	rep := m.transform(results)
	if err := m.presenter.Present(ctx, rep); err != nil {
		return fmt.Errorf("present report: %w", err)
	}

	log.Info("Lookup run complete",
		zap.Int("identifiers", len(ids)),
		zap.Int("batches", stats.Batches),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("malicious", rep.MaliciousCount()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// runLookups prefers the lookuper's own Stats. Without them every identifier
// that produced no response counts as failed, and batches are unknown.
func (m *Manager) runLookups(ctx context.Context, ids []string) ([]virustotal.LookupResponse, lookup.Stats) {
	if sl, ok := m.lookuper.(StatsLookuper); ok {
		return sl.LookupWithStats(ctx, ids)
	}
	results := m.lookuper.Lookup(ctx, ids)
	return results, lookup.Stats{
		Succeeded: len(results),
		Failed:    len(ids) - len(results),
	}
}
