package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// templateExamples are the sample values written below the template headers.
var templateExamples = map[Field]string{
	FieldSystemID:               "SYS-0001",
	FieldUUIC:                   "ANA0398MLA041298",
	FieldSex:                    "Male",
	FieldDateOfBirth:            "1998-04-12",
	FieldScreeningDate:          "2026-08-01",
	FieldEverHadSex:             "Yes",
	FieldSexWithoutCondom:       "Yes",
	FieldNumberOfSexualPartners: "2",
	FieldMultipleSexPartners:    "Yes",
	FieldTransactionalSex:       "No",
	FieldPartnerHIVPositive:     "No",
	FieldPartnerInjectsDrugs:    "No",
	FieldPartnerMale:            "Yes",
	FieldPartnerFemale:          "No",
	FieldAlcoholDrugsBeforeSex:  "No",
	FieldInjectedDrugs:          "No",
	FieldSharedNeedle:           "No",
	FieldSTIDiagnosed:           "No",
	FieldSTISymptoms:            "No",
	FieldHIVTested:              "Yes",
	FieldHIVTestResult:          "Negative",
	FieldEverOnPrep:             "Never Know",
	FieldCurrentlyOnPrep:        "No",
	FieldForcedSex:              "No",
	FieldPregnant:               "No",
	FieldRiskScreeningScore:     "",
}

// WriteTemplate emits the downloadable import template: the machine-label
// header line, the human-readable header line, then one example row.
func WriteTemplate(w io.Writer, m *Mapping) error {
	cw := csv.NewWriter(w)

	machine := make([]string, len(m.FieldOrder))
	human := make([]string, len(m.FieldOrder))
	example := make([]string, len(m.FieldOrder))
	for i, f := range m.FieldOrder {
		machine[i] = m.Label(f)
		human[i] = m.HumanLabels[f]
		example[i] = templateExamples[f]
	}

	for _, row := range [][]string{machine, human, example} {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write template: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRows parses delimited import text into header-mapped raw rows. The
// first line is the header; a data line exactly matching the template's
// human-readable header line is discarded rather than rejected, so a
// template re-submitted unchanged imports its example rows only. Fully empty
// lines are skipped.
func ReadRows(r io.Reader, m *Mapping) ([]map[Field]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	headers := ResolveHeaders(header, m)
	if len(headers) == 0 {
		return nil, fmt.Errorf("no recognizable columns in header row")
	}

	var rows []map[Field]string
	for {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		if emptyRow(cells) || IsTranslationRow(cells, headers, m) {
			continue
		}
		row := make(map[Field]string, len(headers))
		for i, f := range headers {
			if i < len(cells) {
				row[f] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Prepare reads and validates every row of an import file. Row numbers in
// the results are 1-based over the surviving data rows.
func Prepare(r io.Reader, m *Mapping) ([]ValidationResult, error) {
	rows, err := ReadRows(r, m)
	if err != nil {
		return nil, err
	}
	out := make([]ValidationResult, 0, len(rows))
	for i, row := range rows {
		out = append(out, ValidateRow(row, i+1, m))
	}
	return out, nil
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
