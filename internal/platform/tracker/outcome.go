package tracker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OutcomeKind tags the result of a write against the tracker store.
type OutcomeKind int

const (
	// OutcomeSuccess: the write was accepted; Reference holds the remote id
	// when the store echoed one.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeConflict: a uniqueness violation. Expected during idempotent
	// re-imports; callers recover by re-querying for the existing record.
	// Reference may still be set when the store echoes the conflicting id.
	OutcomeConflict
	// OutcomeRejection: the store refused the payload for a reason unrelated
	// to uniqueness (bad enumerated value, missing mandatory attribute).
	// Not retried.
	OutcomeRejection
	// OutcomeTransport: the request never produced a usable response.
	OutcomeTransport
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeConflict:
		return "conflict"
	case OutcomeRejection:
		return "rejection"
	case OutcomeTransport:
		return "transport"
	}
	return "unknown"
}

// Outcome is the single normalized result of a Create or Update. All
// downstream logic matches on Kind; nothing outside this package inspects
// raw response bodies or HTTP status codes.
type Outcome struct {
	Kind      OutcomeKind
	Reference string
	Details   string
	Err       error
}

func (o Outcome) Succeeded() bool  { return o.Kind == OutcomeSuccess }
func (o Outcome) IsConflict() bool { return o.Kind == OutcomeConflict }

// Error renders the outcome as an error message for row-failure reporting.
func (o Outcome) Error() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if o.Details != "" {
		return o.Details
	}
	return o.Kind.String()
}

// conflictKeywords are the heuristics that classify a server-side error text
// as a uniqueness violation. The store does not use a dedicated error code
// for these, so keyword matching is the contract.
var conflictKeywords = []string{
	"already exists",
	"duplicate",
	"unique",
	"value_exists",
}

func looksLikeConflict(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range conflictKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Wire shapes for the store's structured import summaries. The same write can
// report failure either through the HTTP status or through a low-severity
// summary status, sometimes nested one level deeper; both are normalized here.
type wireResponse struct {
	HTTPStatusCode int          `json:"httpStatusCode"`
	Status         string       `json:"status"`
	Message        string       `json:"message"`
	Response       *wireSummary `json:"response"`
}

type wireSummary struct {
	Status          string            `json:"status"`
	Reference       string            `json:"reference"`
	Description     string            `json:"description"`
	ImportSummaries []wireImportEntry `json:"importSummaries"`
}

type wireImportEntry struct {
	Status      string         `json:"status"`
	Reference   string         `json:"reference"`
	Description string         `json:"description"`
	Conflicts   []wireConflict `json:"conflicts"`
}

type wireConflict struct {
	Object string `json:"object"`
	Value  string `json:"value"`
}

// flatten pulls the first import summary's reference, description and
// conflict texts out of whichever nesting level they arrived at.
func (w *wireResponse) flatten() (reference, details string) {
	var parts []string
	if w.Message != "" {
		parts = append(parts, w.Message)
	}
	if w.Response != nil {
		reference = w.Response.Reference
		if w.Response.Description != "" {
			parts = append(parts, w.Response.Description)
		}
		for _, s := range w.Response.ImportSummaries {
			if reference == "" {
				reference = s.Reference
			}
			if s.Description != "" {
				parts = append(parts, s.Description)
			}
			for _, c := range s.Conflicts {
				parts = append(parts, fmt.Sprintf("%s: %s", c.Object, c.Value))
			}
		}
	}
	return reference, strings.Join(parts, "; ")
}

func (w *wireResponse) failed() bool {
	if w.Status == "ERROR" || w.Status == "WARNING" {
		return true
	}
	if w.Response == nil {
		return false
	}
	if w.Response.Status == "ERROR" || w.Response.Status == "WARNING" {
		return true
	}
	for _, s := range w.Response.ImportSummaries {
		if s.Status == "ERROR" || s.Status == "WARNING" {
			return true
		}
	}
	return false
}

// NormalizeResponse maps an HTTP response body into an Outcome. It handles
// both failure shapes the store produces: a non-2xx status code (409 is
// always a conflict) and a 2xx envelope whose summary status is
// ERROR/WARNING with a uniqueness-type conflict description.
func NormalizeResponse(statusCode int, body []byte) Outcome {
	var w wireResponse
	parsed := json.Unmarshal(body, &w) == nil
	var reference, details string
	if parsed {
		reference, details = w.flatten()
	}
	if details == "" {
		details = strings.TrimSpace(string(body))
	}

	if statusCode == http.StatusConflict {
		return Outcome{Kind: OutcomeConflict, Reference: reference, Details: details}
	}
	if statusCode >= 200 && statusCode < 300 {
		if parsed && w.failed() {
			if looksLikeConflict(details) {
				return Outcome{Kind: OutcomeConflict, Reference: reference, Details: details}
			}
			return Outcome{Kind: OutcomeRejection, Details: details}
		}
		return Outcome{Kind: OutcomeSuccess, Reference: reference, Details: details}
	}

	if looksLikeConflict(details) {
		return Outcome{Kind: OutcomeConflict, Reference: reference, Details: details}
	}
	return Outcome{Kind: OutcomeRejection, Details: fmt.Sprintf("status %d: %s", statusCode, details)}
}

// NormalizeError maps a transport-level failure into an Outcome.
func NormalizeError(err error) Outcome {
	return Outcome{Kind: OutcomeTransport, Err: err, Details: err.Error()}
}
