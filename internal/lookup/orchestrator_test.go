package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/virustotal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient fails identifiers starting with "fail", records concurrency and
// the order in which lookups start.
type fakeClient struct {
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu      sync.Mutex
	started []string
}

func (f *fakeClient) Lookup(ctx context.Context, id string) (*virustotal.LookupResponse, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.started = append(f.started, id)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.HasPrefix(id, "fail") {
		return nil, &virustotal.StatusError{Identifier: id, StatusCode: 401}
	}
	if id == "panic" {
		panic("boom")
	}
	return &virustotal.LookupResponse{Data: virustotal.LookupData{Identifier: id, Type: virustotal.TypeIPAddress}}, nil
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func identifiers(rs []virustotal.LookupResponse) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Data.Identifier)
	}
	return out
}

func TestPartition(t *testing.T) {
	for n := 0; n <= 23; n++ {
		for g := 1; g <= 7; g++ {
			in := ids("id", n)
			batches := Partition(in, g)

			assert.Equal(t, (n+g-1)/g, len(batches), "n=%d g=%d", n, g)

			var joined []string
			for _, b := range batches {
				assert.LessOrEqual(t, len(b), g)
				assert.NotEmpty(t, b)
				joined = append(joined, b...)
			}
			if n == 0 {
				assert.Empty(t, joined)
			} else {
				assert.Equal(t, in, joined)
			}
		}
	}
}

func TestPartition_AppendDoesNotClobber(t *testing.T) {
	in := []string{"a", "b", "c", "d"}
	batches := Partition(in, 2)
	_ = append(batches[0], "x")
	assert.Equal(t, []string{"a", "b", "c", "d"}, in)
}

func TestLookup_AllSucceed(t *testing.T) {
	client := &fakeClient{delay: 5 * time.Millisecond}
	o := NewOrchestrator(client, 3, nil)

	in := ids("ok", 10)
	got, stats := o.LookupWithStats(context.Background(), in)

	require.Len(t, got, 10)
	assert.ElementsMatch(t, in, identifiers(got))
	assert.Equal(t, Stats{Batches: 4, Succeeded: 10, Failed: 0, Elapsed: stats.Elapsed}, stats)
	assert.LessOrEqual(t, int(client.maxInFlight.Load()), 3)
}

func TestLookup_BatchesRunSequentially(t *testing.T) {
	client := &fakeClient{delay: 10 * time.Millisecond}
	o := NewOrchestrator(client, 4, nil)

	in := ids("ok", 12)
	o.Lookup(context.Background(), in)

	// Every lookup of batch k starts before any lookup of batch k+1.
	require.Len(t, client.started, 12)
	for i, batch := range Partition(in, 4) {
		window := append([]string(nil), client.started[i*4:i*4+4]...)
		sort.Strings(window)
		want := append([]string(nil), batch...)
		sort.Strings(want)
		assert.Equal(t, want, window, "batch %d", i)
	}
	assert.Equal(t, int32(4), client.maxInFlight.Load())
}

func TestLookup_PartialFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	o := NewOrchestrator(&fakeClient{}, 2, zap.New(core))

	in := []string{"ok1", "fail1", "ok2", "fail2", "fail3", "ok3", "panic"}
	got, stats := o.LookupWithStats(context.Background(), in)

	assert.ElementsMatch(t, []string{"ok1", "ok2", "ok3"}, identifiers(got))
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 4, stats.Failed)
	assert.Equal(t, 4, stats.Batches)

	failed := logs.FilterMessage("Lookup failed")
	require.Equal(t, 4, failed.Len())
	var logged []string
	for _, e := range failed.All() {
		assert.Equal(t, zapcore.ErrorLevel, e.Level)
		logged = append(logged, e.ContextMap()["identifier"].(string))
	}
	assert.ElementsMatch(t, []string{"fail1", "fail2", "fail3", "panic"}, logged)
}

func TestLookup_AllFail(t *testing.T) {
	o := NewOrchestrator(&fakeClient{}, 4, nil)

	got, stats := o.LookupWithStats(context.Background(), ids("fail", 9))
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 9, stats.Failed)
	assert.Equal(t, 3, stats.Batches)
}

func TestLookup_Empty(t *testing.T) {
	o := NewOrchestrator(&fakeClient{}, 4, nil)
	got, stats := o.LookupWithStats(context.Background(), nil)
	assert.Empty(t, got)
	assert.Equal(t, 0, stats.Batches)
}

func TestLookup_CancelStopsLaterBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &cancellingClient{cancel: cancel}
	o := NewOrchestrator(client, 2, nil)

	got, stats := o.LookupWithStats(ctx, ids("ok", 6))
	assert.Len(t, got, 2)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 4, stats.Skipped)
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestLookup_LogsCarryContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := NewOrchestrator(&fakeClient{}, 2, zap.New(core))
	ctx := logging.WithFields(context.Background(), zap.String("run_id", "run-7"))

	o.Lookup(ctx, []string{"ok0", "fail0", "fail1"})

	failed := logs.FilterMessage("Lookup failed").All()
	require.Len(t, failed, 2)
	for _, e := range failed {
		assert.Equal(t, "run-7", e.ContextMap()["run_id"])
	}
}

// cancellingClient succeeds and cancels the run on its first call.
type cancellingClient struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (c *cancellingClient) Lookup(ctx context.Context, id string) (*virustotal.LookupResponse, error) {
	c.calls.Add(1)
	c.cancel()
	return &virustotal.LookupResponse{Data: virustotal.LookupData{Identifier: id}}, nil
}

func TestNewOrchestrator_DefaultGroupSize(t *testing.T) {
	assert.Equal(t, DefaultGroupMaxSize, NewOrchestrator(&fakeClient{}, 0, nil).GroupMaxSize())
	assert.Equal(t, 7, NewOrchestrator(&fakeClient{}, 7, nil).GroupMaxSize())
}

func TestValidateGroupMaxSize(t *testing.T) {
	assert.NoError(t, ValidateGroupMaxSize(1))
	assert.NoError(t, ValidateGroupMaxSize(50))
	assert.Error(t, ValidateGroupMaxSize(0))
	assert.Error(t, ValidateGroupMaxSize(51))
}

func TestLookupOne_NilResponse(t *testing.T) {
	o := NewOrchestrator(nilClient{}, 1, nil)
	out := o.lookupOne(context.Background(), "x")
	assert.Nil(t, out.Response)
	assert.Error(t, out.Err)
	assert.False(t, errors.Is(out.Err, context.Canceled))
}

type nilClient struct{}

func (nilClient) Lookup(context.Context, string) (*virustotal.LookupResponse, error) {
	return nil, nil
}
