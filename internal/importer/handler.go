package importer

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler exposes the import pipeline over HTTP: template download, file
// upload, and audit-run retrieval.
type Handler struct {
	orch *Orchestrator
	runs RunStore
	m    *Mapping
	log  zerolog.Logger
}

func NewHandler(orch *Orchestrator, runs RunStore, m *Mapping, log zerolog.Logger) *Handler {
	return &Handler{orch: orch, runs: runs, m: m, log: log}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/template", h.DownloadTemplate)
	api.POST("/imports", h.Import)
	api.GET("/imports/:id", h.GetRun)
}

// DownloadTemplate streams the CSV import template.
func (h *Handler) DownloadTemplate(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="screening-template.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	return WriteTemplate(c.Response(), h.m)
}

// importResponse is the upload endpoint's body: the audit-run id plus the
// full per-row report.
type importResponse struct {
	RunID string `json:"runId"`
	BatchResult
}

// Import accepts a screening file as the "file" part of a multipart form, or
// as the raw request body, and runs the batch synchronously. The response is
// always the full report; a batch where every row failed is still HTTP 200
// because the batch itself completed.
func (h *Handler) Import(c echo.Context) error {
	src, name, err := uploadBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	rows, err := Prepare(src, h.m)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	run := NewImportRun(name)
	if err := h.runs.CreateRun(ctx, run); err != nil {
		h.log.Error().Err(err).Msg("audit run not created")
	}

	res := RunBatch(ctx, rows, h.orch, h.log)

	for _, row := range res.Rows {
		if err := h.runs.RecordRow(ctx, run.ID, row); err != nil {
			h.log.Error().Err(err).Int("row", row.Row).Msg("audit row not recorded")
		}
	}
	if err := h.runs.FinishRun(ctx, run.ID, res.Summary); err != nil {
		h.log.Error().Err(err).Msg("audit run not finished")
	}

	return c.JSON(http.StatusOK, importResponse{RunID: run.ID, BatchResult: res})
}

// GetRun returns a past audit run with its per-row report.
func (h *Handler) GetRun(c echo.Context) error {
	run, rows, err := h.runs.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "import run not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"run":  run,
		"rows": rows,
	})
}

// uploadBody returns the uploaded file content: the "file" multipart part
// when present, the raw body otherwise.
func uploadBody(c echo.Context) (io.ReadCloser, string, error) {
	fh, err := c.FormFile("file")
	if err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		return f, fh.Filename, nil
	}
	if c.Request().ContentLength == 0 {
		return nil, "", errors.New("empty request body")
	}
	return c.Request().Body, "request-body", nil
}
