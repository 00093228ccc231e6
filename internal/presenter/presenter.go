// Package presenter renders an AnalysisReport to a JSON file or the console.
package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/report"
)

// FilePresenter writes the report to "<timestamp>.json" in a directory.
type FilePresenter struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger

	lastPath string
}

// NewFilePresenter creates a presenter writing into dir ("" means the
// working directory).
func NewFilePresenter(dir string, logger *zap.Logger) *FilePresenter {
	return &FilePresenter{dir: dir, now: time.Now, logger: logging.OrNop(logger)}
}

// LastPath returns the file written by the most recent Present call.
func (p *FilePresenter) LastPath() string { return p.lastPath }

func (p *FilePresenter) Present(ctx context.Context, r report.AnalysisReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}

	path := filepath.Join(p.dir, FileName(p.now()))
	if p.dir != "" {
		if err := os.MkdirAll(p.dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", p.dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	p.lastPath = path

	logging.FromContext(ctx, p.logger).Info("Report written",
		zap.String("path", path),
		zap.Int("records", r.Len()),
		zap.String("size", humanize.Bytes(uint64(len(data)))))
	return nil
}

// FileName is the report file name for a given instant: an ISO-8601 basic
// format timestamp, which has no colons and so is valid on every platform.
func FileName(t time.Time) string {
	return t.Format("20060102T150405.000000Z0700") + ".json"
}

// Encode renders the report as indented JSON.
func Encode(r report.AnalysisReport) ([]byte, error) {
	if r.Results == nil {
		r.Results = []report.AnalysisRecord{}
	}
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// ConsolePresenter prints one verdict line per record.
type ConsolePresenter struct {
	out io.Writer
}

// NewConsolePresenter creates a presenter printing to out.
func NewConsolePresenter(out io.Writer) *ConsolePresenter {
	return &ConsolePresenter{out: out}
}

func (p *ConsolePresenter) Present(ctx context.Context, r report.AnalysisReport) error {
	for _, rec := range r.Results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(p.out, Line(rec)); err != nil {
			return fmt.Errorf("print report: %w", err)
		}
	}
	return nil
}

// Line formats one record as "<identifier> is malicious|safe".
func Line(rec report.AnalysisRecord) string {
	verdict := "safe"
	if rec.IsMalicious {
		verdict = "malicious"
	}
	return rec.Identifier + " is " + verdict
}
