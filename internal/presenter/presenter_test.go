package presenter

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/vt-lookup/internal/report"
)

var sampleReport = report.AnalysisReport{Results: []report.AnalysisRecord{
	{Identifier: "127.0.0.1", Type: "IP_ADDRESS", LastAnalysisTime: time.Date(2024, 8, 22, 13, 25, 8, 0, time.UTC), IsMalicious: false},
	{Identifier: "127.0.0.2", Type: "IP_ADDRESS", LastAnalysisTime: time.Date(2024, 8, 22, 15, 38, 44, 0, time.UTC), IsMalicious: true},
}}

const expectedJSON = `{
    "Results": [
        {
            "Identifier": "127.0.0.1",
            "Type": "IP_ADDRESS",
            "LastAnalysisTime": "2024-08-22T13:25:08Z",
            "IsMalicious": false
        },
        {
            "Identifier": "127.0.0.2",
            "Type": "IP_ADDRESS",
            "LastAnalysisTime": "2024-08-22T15:38:44Z",
            "IsMalicious": true
        }
    ]
}
`

func TestEncode(t *testing.T) {
	data, err := Encode(sampleReport)
	require.NoError(t, err)
	assert.Equal(t, expectedJSON, string(data))
}

func TestFilePresenter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	p := NewFilePresenter(dir, nil)
	p.now = func() time.Time { return time.Date(2024, 8, 22, 16, 0, 0, 0, time.UTC) }

	require.NoError(t, p.Present(context.Background(), sampleReport))

	want := filepath.Join(dir, "20240822T160000.000000Z.json")
	assert.Equal(t, want, p.LastPath())

	data, err := os.ReadFile(want)
	require.NoError(t, err)

	var back report.AnalysisReport
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Results, 2)
	for i, rec := range sampleReport.Results {
		assert.Equal(t, rec.Identifier, back.Results[i].Identifier)
		assert.Equal(t, rec.Type, back.Results[i].Type)
		assert.Equal(t, rec.IsMalicious, back.Results[i].IsMalicious)
	}
}

func TestFileName(t *testing.T) {
	name := FileName(time.Date(2024, 1, 2, 3, 4, 5, 600000000, time.FixedZone("x", 2*3600)))
	assert.Equal(t, "20240102T030405.600000+0200.json", name)
	assert.NotContains(t, name, ":")
}

func TestConsolePresenter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsolePresenter(&buf).Present(context.Background(), sampleReport))
	assert.Equal(t, "127.0.0.1 is safe\n127.0.0.2 is malicious\n", buf.String())
}

func TestConsolePresenter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	assert.Error(t, NewConsolePresenter(&buf).Present(ctx, sampleReport))
	assert.Empty(t, buf.String())
}
