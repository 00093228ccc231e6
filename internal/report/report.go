// Package report turns raw lookup responses into the malicious/safe records
// that presenters render.
package report

import (
	"strings"
	"time"

	"github.com/Ashfaaq98/vt-lookup/internal/virustotal"
)

// AnalysisRecord is the presentation view of one lookup. JSON field names
// are PascalCase on the wire.
type AnalysisRecord struct {
	Identifier       string    `json:"Identifier"`
	Type             string    `json:"Type"`
	LastAnalysisTime time.Time `json:"LastAnalysisTime"`
	IsMalicious      bool      `json:"IsMalicious"`
}

// AnalysisReport is the ordered set of records for one run.
type AnalysisReport struct {
	Results []AnalysisRecord `json:"Results"`
}

// Len returns the number of records.
func (r AnalysisReport) Len() int { return len(r.Results) }

// MaliciousCount returns how many records are classified malicious.
func (r AnalysisReport) MaliciousCount() int {
	n := 0
	for _, rec := range r.Results {
		if rec.IsMalicious {
			n++
		}
	}
	return n
}

// IsMalicious reports whether malicious and suspicious verdicts together
// outnumber harmless ones. Ties are safe.
func IsMalicious(s virustotal.LastAnalysisStats) bool {
	return s.Malicious+s.Suspicious > s.Harmless
}

// FromLookup builds the record for one response.
func FromLookup(resp virustotal.LookupResponse) AnalysisRecord {
	return AnalysisRecord{
		Identifier:       resp.Data.Identifier,
		Type:             strings.ToUpper(resp.Data.Type),
		LastAnalysisTime: resp.Data.Attributes.LastAnalysisDate.Time,
		IsMalicious:      IsMalicious(resp.Data.Attributes.LastAnalysisStats),
	}
}

// FromLookups converts responses in order.
func FromLookups(responses []virustotal.LookupResponse) AnalysisReport {
	out := AnalysisReport{Results: make([]AnalysisRecord, 0, len(responses))}
	for _, r := range responses {
		out.Results = append(out.Results, FromLookup(r))
	}
	return out
}
