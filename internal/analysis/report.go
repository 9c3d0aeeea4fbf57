package analysis

import "strings"

// Verdict is a model's overall health call for one device.
type Verdict string

const (
	VerdictNormal   Verdict = "NORMAL"
	VerdictWarning  Verdict = "WARNING"
	VerdictCritical Verdict = "CRITICAL"
	// VerdictUnknown marks a diagnostic whose analysis never produced
	// a usable call: the model omitted the verdict line, or analysis
	// failed outright.
	VerdictUnknown Verdict = "UNKNOWN"
)

// Report is the parsed outcome of one analysis.
type Report struct {
	Verdict   Verdict `json:"verdict"`
	Narrative string  `json:"narrative"`
	Model     string  `json:"model"`
}

// AnalysisError reports a failure to obtain or parse the model's
// response. Non-fatal to a diagnostic: raw and sanitized artifacts
// survive it.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string { return "analysis failed: " + e.Err.Error() }

func (e *AnalysisError) Unwrap() error { return e.Err }

// parseVerdict scans the leading lines of a narrative for the VERDICT
// marker. A narrative that never states one is UNKNOWN.
func parseVerdict(narrative string) Verdict {
	lines := strings.Split(narrative, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	for _, line := range lines {
		line = strings.ToUpper(strings.Trim(strings.TrimSpace(line), "*# "))
		rest, ok := strings.CutPrefix(line, "VERDICT:")
		if !ok {
			continue
		}
		rest = strings.Trim(strings.TrimSpace(rest), "* ")
		switch {
		case strings.HasPrefix(rest, string(VerdictCritical)):
			return VerdictCritical
		case strings.HasPrefix(rest, string(VerdictWarning)):
			return VerdictWarning
		case strings.HasPrefix(rest, string(VerdictNormal)):
			return VerdictNormal
		}
	}
	return VerdictUnknown
}

// unwrapFences removes the outer markdown code fence some models wrap
// their whole answer in.
func unwrapFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(s)
}
