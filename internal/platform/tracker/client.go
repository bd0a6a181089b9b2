package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger attaches a logger for request-level debug output.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(cl *Client) { cl.log = log }
}

// Client is the HTTP implementation of Store against a live tracker server.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a tracker client. baseURL is the server root; the API
// prefix is appended per request.
func NewClient(baseURL, username, password string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// List envelopes per resource kind.
type personList struct {
	TrackedEntityInstances []personEntry `json:"trackedEntityInstances"`
}

type personEntry struct {
	TrackedEntityInstance string      `json:"trackedEntityInstance"`
	OrgUnit               string      `json:"orgUnit"`
	Attributes            []Attribute `json:"attributes"`
}

type enrollmentList struct {
	Enrollments []enrollmentEntry `json:"enrollments"`
}

type enrollmentEntry struct {
	Enrollment     string `json:"enrollment"`
	Program        string `json:"program"`
	OrgUnit        string `json:"orgUnit"`
	EnrollmentDate string `json:"enrollmentDate"`
}

type eventList struct {
	Events []eventEntry `json:"events"`
}

type eventEntry struct {
	Event     string `json:"event"`
	Program   string `json:"program"`
	OrgUnit   string `json:"orgUnit"`
	EventDate string `json:"eventDate"`
}

// Query performs a read against the store. A "viaEntity" filter on the
// enrollments kind reads the person entity itself and returns its own
// enrollment list, which is the only read guaranteed to see an enrollment
// the list endpoint has not indexed yet.
func (c *Client) Query(ctx context.Context, kind ResourceKind, f Filters) ([]Entity, error) {
	if kind == KindEnrollment {
		if pid, ok := f["viaEntity"]; ok {
			return c.queryEntityEnrollments(ctx, pid)
		}
	}

	q := url.Values{}
	for k, v := range f {
		if v != "" {
			q.Set(k, v)
		}
	}

	body, err := c.get(ctx, fmt.Sprintf("/api/%s", kind), q)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindPerson:
		var list personList
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", kind, err)
		}
		out := make([]Entity, 0, len(list.TrackedEntityInstances))
		for _, p := range list.TrackedEntityInstances {
			out = append(out, Entity{ID: p.TrackedEntityInstance, OrgUnit: p.OrgUnit, Attributes: p.Attributes})
		}
		return out, nil
	case KindEnrollment:
		var list enrollmentList
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", kind, err)
		}
		return enrollmentEntities(list.Enrollments), nil
	case KindEvent:
		var list eventList
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", kind, err)
		}
		out := make([]Entity, 0, len(list.Events))
		for _, e := range list.Events {
			out = append(out, Entity{ID: e.Event, Program: e.Program, OrgUnit: e.OrgUnit, Date: e.EventDate})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown resource kind %q", kind)
}

func (c *Client) queryEntityEnrollments(ctx context.Context, personID string) ([]Entity, error) {
	q := url.Values{}
	q.Set("fields", "enrollments[enrollment,program,orgUnit,enrollmentDate]")
	body, err := c.get(ctx, fmt.Sprintf("/api/%s/%s", KindPerson, personID), q)
	if err != nil {
		return nil, err
	}
	var detail enrollmentList
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("decode entity enrollments: %w", err)
	}
	return enrollmentEntities(detail.Enrollments), nil
}

func enrollmentEntities(entries []enrollmentEntry) []Entity {
	out := make([]Entity, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entity{ID: e.Enrollment, Program: e.Program, OrgUnit: e.OrgUnit, Date: e.EnrollmentDate})
	}
	return out
}

// Create posts a new resource and normalizes whatever came back.
func (c *Client) Create(ctx context.Context, kind ResourceKind, payload interface{}) Outcome {
	return c.write(ctx, http.MethodPost, fmt.Sprintf("/api/%s", kind), payload)
}

// Update replaces an existing resource by id.
func (c *Client) Update(ctx context.Context, kind ResourceKind, id string, payload interface{}) Outcome {
	return c.write(ctx, http.MethodPut, fmt.Sprintf("/api/%s/%s", kind, id), payload)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracker query %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tracker response: %w", err)
	}

	c.log.Debug().
		Str("method", http.MethodGet).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("tracker request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tracker query %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) write(ctx context.Context, method, path string, payload interface{}) Outcome {
	data, err := json.Marshal(payload)
	if err != nil {
		return NormalizeError(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return NormalizeError(err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NormalizeError(fmt.Errorf("tracker %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NormalizeError(fmt.Errorf("read tracker response: %w", err))
	}

	outcome := NormalizeResponse(resp.StatusCode, body)
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("outcome", outcome.Kind.String()).
		Dur("latency", time.Since(start)).
		Msg("tracker request")
	return outcome
}
