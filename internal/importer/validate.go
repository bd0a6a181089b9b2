package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// now is the clock used for age derivation and identifier fabrication.
// Overridden in tests.
var now = time.Now

// ValidateRow validates and transforms one header-mapped raw row into a
// canonical record. It never returns an error and performs no I/O: rows that
// fail come back with IsValid=false and the reasons in Errors, with the
// record still materialized so the caller can show what was parsed.
func ValidateRow(row map[Field]string, rowNum int, m *Mapping) ValidationResult {
	res := ValidationResult{Data: make(Record, len(row))}

	for f, v := range row {
		res.Data[f] = strings.TrimSpace(v)
	}

	// Required fields, reported by their human-facing label.
	for _, f := range m.RequiredFields {
		if res.Data[f] == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("missing required field: %s", m.Label(f)))
		}
	}

	// Date of birth must be YYYY-MM-DD; the value is never auto-corrected.
	dob := res.Data[FieldDateOfBirth]
	var birth time.Time
	if dob != "" {
		t, err := parseISODate(dob)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s must be in YYYY-MM-DD format, got %q", m.Label(FieldDateOfBirth), dob))
		} else {
			birth = t
			res.Data[FieldAge] = strconv.Itoa(ageAt(birth, now()))
		}
	}

	// Screening date is optional; an unparseable one is dropped with a
	// warning and the event date falls back to the import date.
	if sd := res.Data[FieldScreeningDate]; sd != "" {
		if _, err := parseISODate(sd); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s %q is not YYYY-MM-DD; using today", m.Label(FieldScreeningDate), sd))
			res.Data[FieldScreeningDate] = ""
		}
	}

	// Numeric fields must parse as non-negative integers when present.
	for _, f := range []Field{FieldNumberOfSexualPartners, FieldRiskScreeningScore} {
		v := res.Data[f]
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("%s must be a non-negative number, got %q", m.Label(f), v))
		}
	}

	normalizeBooleans(&res, m)

	// Fabricate identifiers only when the file left them blank; a
	// user-supplied value is never overwritten. Fabricated values are unique
	// within the batch but uniqueness against the remote store is enforced
	// remotely at write time.
	if res.Data[FieldSystemID] == "" {
		res.Data[FieldSystemID] = fabricateIdentifier("SYS", rowNum)
	}
	if res.Data[FieldUUIC] == "" {
		res.Data[FieldUUIC] = fabricateIdentifier("UIC", rowNum)
	}

	applyScore(&res, m)

	res.IsValid = len(res.Errors) == 0
	return res
}

func normalizeBooleans(res *ValidationResult, m *Mapping) {
	for f := range m.BooleanFields {
		raw := res.Data[f]
		if raw == "" {
			continue
		}
		t, ok := ParseTriState(f, raw, m)
		if !ok {
			// Unrecognized values pass through verbatim; the row still
			// imports with this field uninterpretable downstream.
			res.Warnings = append(res.Warnings, fmt.Sprintf("unrecognized value for %s: %q", m.Label(f), raw))
			continue
		}
		if t == TriUnknown {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s answered %q; omitted from the import", m.Label(f), raw))
		}
		res.Data[f] = t.String()
	}
}

// applyScore merges the risk scorer's output into the record. A positive
// score supplied in the file wins verbatim; only the ordinal tier is
// recomputed from it.
func applyScore(res *ValidationResult, m *Mapping) {
	if v := res.Data[FieldRiskScreeningScore]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			res.Data[FieldRiskScreeningResult] = string(m.TierForScore(n))
			return
		}
	}
	sc := Score(res.Data, m)
	res.Data[FieldRiskScreeningScore] = strconv.Itoa(sc.Score)
	res.Data[FieldRiskScreeningResult] = string(sc.Tier)
}

func parseISODate(s string) (time.Time, error) {
	if !dateRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("not an ISO date: %q", s)
	}
	return time.Parse("2006-01-02", s)
}

// ageAt is whole years, floored, accounting for a month/day not yet reached.
func ageAt(birth, at time.Time) int {
	years := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// fabricateIdentifier builds a batch-unique identifier from the current
// timestamp, a random component, and the row index.
func fabricateIdentifier(prefix string, rowNum int) string {
	entropy := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%d-%s-%d", prefix, now().UnixMilli(), entropy, rowNum)
}
