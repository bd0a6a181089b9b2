package importer

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RowResult is the per-row outcome reported to the operator.
type RowResult struct {
	Row        int    `json:"row"`
	Identifier string `json:"identifier"`
	Status     string `json:"status"` // "success", "failed" or "skipped"
	Message    string `json:"message"`
}

// Summary aggregates one batch run. It is always produced, even when every
// row fails.
type Summary struct {
	TotalRecords          int     `json:"totalRecords"`
	Successful            int     `json:"successful"`
	Failed                int     `json:"failed"`
	Skipped               int     `json:"skipped"`
	ProcessingTimeSeconds float64 `json:"processingTimeSeconds"`
}

// BatchResult is the full output of one import run.
type BatchResult struct {
	Rows    []RowResult `json:"rows"`
	Summary Summary     `json:"summary"`
}

// RunBatch imports validated rows sequentially. Rows are never run in
// parallel: a later row may carry the same natural key as an earlier one and
// must observe the remote state the earlier row created. Invalid rows are
// skipped but still counted. An in-flight row always runs to completion;
// cancellation is only observed between rows, so no person/enrollment/event
// chain is left half-created.
func RunBatch(ctx context.Context, rows []ValidationResult, orch *Orchestrator, log zerolog.Logger) BatchResult {
	start := time.Now()
	res := BatchResult{Summary: Summary{TotalRecords: len(rows)}}

	for i, row := range rows {
		rowNum := i + 1
		id := row.Data[FieldSystemID]

		if !row.IsValid {
			res.Summary.Skipped++
			res.Rows = append(res.Rows, RowResult{
				Row:        rowNum,
				Identifier: id,
				Status:     "skipped",
				Message:    strings.Join(row.Errors, "; "),
			})
			log.Debug().Int("row", rowNum).Strs("errors", row.Errors).Msg("row skipped")
			continue
		}

		if ctx.Err() != nil {
			res.Summary.Failed++
			res.Rows = append(res.Rows, RowResult{
				Row:        rowNum,
				Identifier: id,
				Status:     "failed",
				Message:    "import canceled before this row",
			})
			continue
		}

		outcome := orch.ImportRow(ctx, row.Data)
		if outcome.Success {
			res.Summary.Successful++
			msg := "imported as " + outcome.EntityID
			if len(row.Warnings) > 0 {
				msg += " (" + strings.Join(row.Warnings, "; ") + ")"
			}
			res.Rows = append(res.Rows, RowResult{
				Row:        rowNum,
				Identifier: id,
				Status:     "success",
				Message:    msg,
			})
			log.Debug().Int("row", rowNum).Str("entityId", outcome.EntityID).Msg("row imported")
		} else {
			res.Summary.Failed++
			res.Rows = append(res.Rows, RowResult{
				Row:        rowNum,
				Identifier: id,
				Status:     "failed",
				Message:    outcome.Error,
			})
			log.Warn().Int("row", rowNum).Str("error", outcome.Error).Msg("row failed")
		}
	}

	res.Summary.ProcessingTimeSeconds = time.Since(start).Seconds()
	log.Info().
		Int("total", res.Summary.TotalRecords).
		Int("successful", res.Summary.Successful).
		Int("failed", res.Summary.Failed).
		Int("skipped", res.Summary.Skipped).
		Float64("seconds", res.Summary.ProcessingTimeSeconds).
		Msg("batch complete")
	return res
}
