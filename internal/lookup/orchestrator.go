// Package lookup fans identifier lookups out in fixed-size batches.
package lookup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/virustotal"
)

// Group size bounds
const (
	DefaultGroupMaxSize = 4
	MinGroupMaxSize     = 1
	MaxGroupMaxSize     = 50
)

// Outcome is the result of one lookup task: exactly one of Response or Err
// is set.
type Outcome struct {
	Identifier string
	Response   *virustotal.LookupResponse
	Err        error
}

// Stats summarizes a completed Lookup call.
type Stats struct {
	Batches   int
	Succeeded int
	Failed    int
	// Skipped counts identifiers never looked up because ctx was cancelled.
	Skipped int
	Elapsed time.Duration
}

// Orchestrator looks identifiers up in batches of at most groupMaxSize
// concurrent requests. Batches run one after another.
type Orchestrator struct {
	client       virustotal.Client
	groupMaxSize int
	logger       *zap.Logger
}

// ValidateGroupMaxSize checks n against the accepted range.
func ValidateGroupMaxSize(n int) error {
	if n < MinGroupMaxSize || n > MaxGroupMaxSize {
		return fmt.Errorf("group max size %d out of range [%d, %d]", n, MinGroupMaxSize, MaxGroupMaxSize)
	}
	return nil
}

// NewOrchestrator creates an orchestrator. A non-positive group size falls
// back to DefaultGroupMaxSize.
func NewOrchestrator(client virustotal.Client, groupMaxSize int, logger *zap.Logger) *Orchestrator {
	if groupMaxSize < MinGroupMaxSize {
		groupMaxSize = DefaultGroupMaxSize
	}
	return &Orchestrator{
		client:       client,
		groupMaxSize: groupMaxSize,
		logger:       logging.OrNop(logger),
	}
}

// GroupMaxSize returns the effective batch size.
func (o *Orchestrator) GroupMaxSize() int { return o.groupMaxSize }

// Lookup returns the successful responses for ids. Failed lookups are
// logged and left out; the call as a whole never fails.
func (o *Orchestrator) Lookup(ctx context.Context, ids []string) []virustotal.LookupResponse {
	results, _ := o.LookupWithStats(ctx, ids)
	return results
}

// LookupWithStats is Lookup plus a summary of what happened. If ctx is
// cancelled no further batches are started and the results gathered so far
// are returned.
func (o *Orchestrator) LookupWithStats(ctx context.Context, ids []string) ([]virustotal.LookupResponse, Stats) {
	log := logging.FromContext(ctx, o.logger)
	start := time.Now()
	results := make([]virustotal.LookupResponse, 0, len(ids))
	var stats Stats

	for _, batch := range Partition(ids, o.groupMaxSize) {
		if err := ctx.Err(); err != nil {
			stats.Skipped = len(ids) - stats.Succeeded - stats.Failed
			log.Warn("Lookup cancelled, skipping remaining batches",
				zap.Int("completed_batches", stats.Batches),
				zap.Int("skipped", stats.Skipped),
				zap.Error(err))
			break
		}
		stats.Batches++

		for _, out := range o.runBatch(ctx, batch) {
			if out.Err != nil {
				stats.Failed++
				log.Error("Lookup failed",
					zap.String("identifier", out.Identifier),
					zap.Error(out.Err))
				continue
			}
			stats.Succeeded++
			results = append(results, *out.Response)
		}
	}

	stats.Elapsed = time.Since(start)
	return results, stats
}

// runBatch issues one lookup per identifier and waits for all of them.
// Outcomes are in completion order.
func (o *Orchestrator) runBatch(ctx context.Context, batch []string) []Outcome {
	done := make(chan Outcome, len(batch))

	// Tasks never return an error: a failure is an Outcome, so one lookup
	// cannot cancel its siblings.
	var g errgroup.Group
	for _, id := range batch {
		id := id
		g.Go(func() error {
			done <- o.lookupOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	close(done)

	outcomes := make([]Outcome, 0, len(batch))
	for out := range done {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (o *Orchestrator) lookupOne(ctx context.Context, id string) (out Outcome) {
	out.Identifier = id
	defer func() {
		if r := recover(); r != nil {
			out.Response = nil
			out.Err = fmt.Errorf("lookup panicked: %v", r)
		}
	}()

	resp, err := o.client.Lookup(ctx, id)
	switch {
	case err != nil:
		out.Err = err
	case resp == nil:
		out.Err = fmt.Errorf("empty response")
	default:
		out.Response = resp
	}
	return out
}

// Partition splits ids into contiguous batches of at most size elements,
// preserving order. size < 1 is treated as 1.
func Partition(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	if len(ids) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end:end])
	}
	return batches
}
