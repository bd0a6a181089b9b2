// Package tracker is the boundary to the remote tracker store: an
// entity-relationship-event datastore holding person entities, program
// enrollments, and program-stage events with typed data values. The store
// offers only create/update/query primitives; duplicate detection happens at
// write time and surfaces as conflicts, which this package normalizes into a
// single Outcome shape regardless of how the server reported them.
package tracker

import "context"

// ResourceKind selects a remote resource collection.
type ResourceKind string

const (
	KindPerson     ResourceKind = "trackedEntityInstances"
	KindEnrollment ResourceKind = "enrollments"
	KindEvent      ResourceKind = "events"
)

// Filters are query parameters passed through to the store's read API.
// Well-known keys:
//
//	"filter"     attribute filter, "ATTRIBUTEID:EQ:value"
//	"ou"         org unit id
//	"ouMode"     "SELECTED", "DESCENDANTS" or "ACCESSIBLE"
//	"program"    program id (omit to drop the program constraint)
//	"trackedEntityInstance", "enrollment", "programStage", "order", "pageSize"
//	"viaEntity"  (enrollments only) read the person entity itself and return
//	             its own enrollment list; used as the last-resort enrollment
//	             lookup after a write conflict
type Filters map[string]string

// Attribute is one (attributeId, value) pair on a person entity.
type Attribute struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// DataValue is one (dataElementId, value) pair on an event.
type DataValue struct {
	DataElement string `json:"dataElement"`
	Value       string `json:"value"`
}

// Entity is one record returned by Query, flattened across resource kinds.
// ID is the person/enrollment/event id depending on the kind queried; Date
// carries the enrollment or event date where the kind has one.
type Entity struct {
	ID         string
	Program    string
	OrgUnit    string
	Date       string
	Attributes []Attribute
}

// PersonPayload creates a person entity.
type PersonPayload struct {
	TrackedEntityType string      `json:"trackedEntityType"`
	OrgUnit           string      `json:"orgUnit"`
	Attributes        []Attribute `json:"attributes"`
}

// EnrollmentPayload enrolls a person entity into a program.
type EnrollmentPayload struct {
	TrackedEntityInstance string `json:"trackedEntityInstance"`
	Program               string `json:"program"`
	OrgUnit               string `json:"orgUnit"`
	EnrollmentDate        string `json:"enrollmentDate"`
	IncidentDate          string `json:"incidentDate,omitempty"`
}

// EventPayload creates or updates a program-stage event. The store treats a
// payload carrying an Event id as an update and one without as a create.
type EventPayload struct {
	Event                 string      `json:"event,omitempty"`
	TrackedEntityInstance string      `json:"trackedEntityInstance"`
	Program               string      `json:"program"`
	ProgramStage          string      `json:"programStage"`
	Enrollment            string      `json:"enrollment,omitempty"`
	OrgUnit               string      `json:"orgUnit"`
	EventDate             string      `json:"eventDate"`
	Status                string      `json:"status,omitempty"`
	DataValues            []DataValue `json:"dataValues"`
}

// Store is the remote tracker store abstraction used by the resolver and the
// upsert orchestrator. Query is read-only; Create and Update report their
// result as a normalized Outcome rather than an error so that expected
// conflicts can be recovered from without shape probing.
type Store interface {
	Query(ctx context.Context, kind ResourceKind, f Filters) ([]Entity, error)
	Create(ctx context.Context, kind ResourceKind, payload interface{}) Outcome
	Update(ctx context.Context, kind ResourceKind, id string, payload interface{}) Outcome
}
