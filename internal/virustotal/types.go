package virustotal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Object types reported by the API
const (
	TypeIPAddress = "ip_address"
	TypeURL       = "url"
)

// LookupResponse is the normalized envelope returned for one identifier.
// Fields the API sends that are not modelled here are ignored on decode.
type LookupResponse struct {
	Data LookupData `json:"data"`
}

// LookupData is the object part of the envelope.
type LookupData struct {
	Identifier string           `json:"id"`
	Type       string           `json:"type"`
	Attributes LookupAttributes `json:"attributes"`
}

// LookupAttributes carries the analysis summary.
type LookupAttributes struct {
	LastAnalysisDate  AnalysisTime      `json:"last_analysis_date"`
	LastAnalysisStats LastAnalysisStats `json:"last_analysis_stats"`
}

// LastAnalysisStats counts engine verdicts from the last analysis.
type LastAnalysisStats struct {
	Harmless   int `json:"harmless"`
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Timeout    int `json:"timeout"`
	Undetected int `json:"undetected"`
}

// Validate checks the invariants a decoded response must hold.
func (r *LookupResponse) Validate() error {
	switch r.Data.Type {
	case TypeIPAddress, TypeURL:
	default:
		return fmt.Errorf("unexpected object type %q", r.Data.Type)
	}
	if r.Data.Identifier == "" {
		return fmt.Errorf("missing object id")
	}
	s := r.Data.Attributes.LastAnalysisStats
	if s.Harmless < 0 || s.Malicious < 0 || s.Suspicious < 0 || s.Timeout < 0 || s.Undetected < 0 {
		return fmt.Errorf("negative analysis stats for %s", r.Data.Identifier)
	}
	if r.Data.Attributes.LastAnalysisDate.IsZero() {
		return fmt.Errorf("missing last_analysis_date for %s", r.Data.Identifier)
	}
	return nil
}

// AnalysisTime decodes either a unix epoch number (seconds, possibly
// fractional) or an ISO-8601 string into the same instant.
type AnalysisTime struct {
	time.Time
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *AnalysisTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			parsed, err := fromEpoch(n)
			if err != nil {
				return err
			}
			t.Time = parsed
			return nil
		}
		for _, layout := range isoLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return fmt.Errorf("unrecognized timestamp %q", s)
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s: %w", b, err)
	}
	parsed, err := fromEpoch(n)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t AnalysisTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// maxEpochSeconds bounds accepted epochs to about 3000 years either side of
// 1970 so the int64 conversion below cannot overflow.
const maxEpochSeconds = 1e11

func fromEpoch(n float64) (time.Time, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) > maxEpochSeconds {
		return time.Time{}, fmt.Errorf("epoch timestamp %g out of range", n)
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
