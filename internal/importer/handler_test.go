package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/riskscreen/riskscreen/internal/platform/tracker"
)

func newTestHandler(store tracker.Store) (*Handler, *InMemoryRunStore) {
	m := testMapping()
	runs := NewInMemoryRunStore()
	orch := newTestOrchestrator(store, m)
	return NewHandler(orch, runs, m, zerolog.Nop()), runs
}

func multipartUpload(t *testing.T, content string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "screenings.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req, httptest.NewRecorder()
}

func TestHandler_Import(t *testing.T) {
	h, runs := newTestHandler(&fakeStore{})
	e := echo.New()

	csv := "Sex,Date of Birth,Unprotected Sex\n" +
		"Male,1998-04-12,Yes\n" +
		"Female,\n"
	req, rec := multipartUpload(t, csv)
	c := e.NewContext(req, rec)

	if err := h.Import(c); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp importResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Error("response has no run id")
	}
	s := resp.Summary
	if s.TotalRecords != 2 || s.Successful != 1 || s.Skipped != 1 {
		t.Errorf("summary = %+v, want 2 total, 1 successful, 1 skipped", s)
	}

	// The run is retrievable from the audit log with every row recorded.
	run, rows, err := runs.GetRun(req.Context(), resp.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Source != "screenings.csv" {
		t.Errorf("run source = %q, want the uploaded filename", run.Source)
	}
	if run.FinishedAt == nil || len(rows) != 2 {
		t.Errorf("run = %+v with %d rows, want finished with 2 rows", run, len(rows))
	}
}

func TestHandler_ImportRawBody(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports",
		strings.NewReader("Sex,Date of Birth\nMale,1998-04-12\n"))
	req.Header.Set(echo.HeaderContentType, "text/csv")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Import(c); err != nil {
		t.Fatalf("Import: %v", err)
	}
	var resp importResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Summary.Successful != 1 {
		t.Errorf("summary = %+v, want 1 successful", resp.Summary)
	}
}

func TestHandler_ImportRejectsUnusableInput(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})
	e := echo.New()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"no recognizable columns", "Foo,Bar\n1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.Import(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusBadRequest {
				t.Errorf("err = %v, want HTTP 400", err)
			}
		})
	}
}

func TestHandler_DownloadTemplate(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/template", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.DownloadTemplate(c); err != nil {
		t.Fatalf("DownloadTemplate: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	if !strings.Contains(rec.Body.String(), "Date of Birth") {
		t.Error("template body missing headers")
	}
}

func TestHandler_GetRun(t *testing.T) {
	h, runs := newTestHandler(&fakeStore{})
	e := echo.New()

	run := NewImportRun("a.csv")
	if err := runs.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(run.ID)

	if err := h.GetRun(c); err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")
	err := h.GetRun(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("err = %v, want HTTP 404", err)
	}
}
