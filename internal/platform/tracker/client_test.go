package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// helper: client pointed at a test server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "importer", "secret", WithHTTPClient(srv.Client()))
}

func TestClient_Query_Persons(t *testing.T) {
	var gotPath, gotFilter, gotOuMode string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFilter = r.URL.Query().Get("filter")
		gotOuMode = r.URL.Query().Get("ouMode")
		user, pass, _ := r.BasicAuth()
		if user != "importer" || pass != "secret" {
			t.Errorf("expected basic auth credentials, got %s:%s", user, pass)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"trackedEntityInstances": []map[string]interface{}{
				{
					"trackedEntityInstance": "aB1cD2eF3gH",
					"orgUnit":               "OU7gqVbYp2c",
					"attributes": []map[string]string{
						{"attribute": "attrSysId01", "value": "SYS-001"},
					},
				},
			},
		})
	})

	got, err := c.Query(context.Background(), KindPerson, Filters{
		"ou":     "OU7gqVbYp2c",
		"ouMode": "SELECTED",
		"filter": "attrSysId01:EQ:SYS-001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/trackedEntityInstances" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotFilter != "attrSysId01:EQ:SYS-001" {
		t.Errorf("unexpected filter %q", gotFilter)
	}
	if gotOuMode != "SELECTED" {
		t.Errorf("unexpected ouMode %q", gotOuMode)
	}
	if len(got) != 1 || got[0].ID != "aB1cD2eF3gH" {
		t.Fatalf("unexpected entities: %+v", got)
	}
	if len(got[0].Attributes) != 1 || got[0].Attributes[0].Value != "SYS-001" {
		t.Errorf("expected attributes to be carried, got %+v", got[0].Attributes)
	}
}

func TestClient_Query_DropsEmptyFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("program") {
			t.Error("empty program filter should not be sent")
		}
		w.Write([]byte(`{"trackedEntityInstances":[]}`))
	})
	if _, err := c.Query(context.Background(), KindPerson, Filters{"program": ""}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_Query_EnrollmentsViaEntity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/trackedEntityInstances/aB1cD2eF3gH" {
			t.Errorf("expected entity detail path, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"enrollments":[{"enrollment":"enRoll11111","program":"PrHIVrisk01","enrollmentDate":"2026-02-01"}]}`))
	})

	got, err := c.Query(context.Background(), KindEnrollment, Filters{"viaEntity": "aB1cD2eF3gH"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "enRoll11111" || got[0].Program != "PrHIVrisk01" {
		t.Fatalf("unexpected enrollments: %+v", got)
	}
}

func TestClient_Query_Events(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"events":[{"event":"evEnt111111","eventDate":"2026-03-10"}]}`))
	})

	got, err := c.Query(context.Background(), KindEvent, Filters{"enrollment": "enRoll11111", "order": "eventDate:desc", "pageSize": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "evEnt111111" || got[0].Date != "2026-03-10" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestClient_Query_NonOKStatusIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	if _, err := c.Query(context.Background(), KindPerson, Filters{}); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestClient_Create_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/trackedEntityInstances" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var p PersonPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if p.TrackedEntityType != "TePerson001" {
			t.Errorf("unexpected payload: %+v", p)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"response":{"status":"SUCCESS","importSummaries":[{"status":"SUCCESS","reference":"newPerson01"}]}}`))
	})

	o := c.Create(context.Background(), KindPerson, PersonPayload{
		TrackedEntityType: "TePerson001",
		OrgUnit:           "OU7gqVbYp2c",
		Attributes:        []Attribute{{Attribute: "attrSysId01", Value: "SYS-001"}},
	})
	if !o.Succeeded() {
		t.Fatalf("expected success, got %s (%s)", o.Kind, o.Details)
	}
	if o.Reference != "newPerson01" {
		t.Errorf("expected created id, got %q", o.Reference)
	}
}

func TestClient_Create_ConflictNormalized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"Attribute value already exists"}`))
	})
	o := c.Create(context.Background(), KindPerson, PersonPayload{})
	if !o.IsConflict() {
		t.Fatalf("expected conflict, got %s", o.Kind)
	}
}

func TestClient_Update_PutsByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/events/evEnt111111" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"response":{"status":"SUCCESS"}}`))
	})
	o := c.Update(context.Background(), KindEvent, "evEnt111111", EventPayload{Event: "evEnt111111"})
	if !o.Succeeded() {
		t.Fatalf("expected success, got %s", o.Kind)
	}
}

func TestClient_TransportErrorNormalized(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "u", "p")
	o := c.Create(context.Background(), KindPerson, PersonPayload{})
	if o.Kind != OutcomeTransport {
		t.Fatalf("expected transport outcome, got %s", o.Kind)
	}
}
