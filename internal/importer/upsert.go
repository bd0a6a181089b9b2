package importer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskscreen/riskscreen/internal/platform/retry"
	"github.com/riskscreen/riskscreen/internal/platform/tracker"
)

// ErrConflictUnresolved means the store confirmed, via a write conflict, that
// an entity with this natural key exists, but none of the lookup strategies
// could locate it. Surfaced to the operator rather than retried forever.
var ErrConflictUnresolved = errors.New("entity exists but cannot be located")

// RowOutcome is the terminal result of importing one record.
type RowOutcome struct {
	Success      bool   `json:"success"`
	EntityID     string `json:"entityId,omitempty"`
	EnrollmentID string `json:"enrollmentId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRetryPolicy overrides the conflict-recovery retry schedule.
func WithRetryPolicy(p retry.Policy) OrchestratorOption {
	return func(o *Orchestrator) { o.policy = p }
}

// WithSleeper overrides the delay implementation. Tests inject
// retry.NopSleeper.
func WithSleeper(s retry.Sleeper) OrchestratorOption {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithOrchestratorLogger attaches a logger.
func WithOrchestratorLogger(log zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = log }
}

// Orchestrator reconciles one canonical record at a time against the tracker
// store: person entity, then enrollment, then the screening event. Write
// conflicts on the natural key are expected during re-imports and recovered
// by re-querying at escalating scope; only failure to locate the confirmed
// entity fails the row.
type Orchestrator struct {
	store    tracker.Store
	resolver *Resolver
	m        *Mapping
	policy   retry.Policy
	sleeper  retry.Sleeper
	log      zerolog.Logger
}

func NewOrchestrator(store tracker.Store, m *Mapping, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		resolver: NewResolver(store, m),
		m:        m,
		policy:   retry.DefaultPolicy(),
		sleeper:  retry.ClockSleeper{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ImportRow runs the full state machine for one record. No error or panic
// escapes: every failure is converted to the RowOutcome failure shape.
func (o *Orchestrator) ImportRow(ctx context.Context, rec Record) (out RowOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = RowOutcome{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	personID, err := o.resolvePerson(ctx, rec)
	if err != nil {
		return RowOutcome{Error: err.Error()}
	}

	enrollmentID, err := o.resolveEnrollment(ctx, personID, rec)
	if err != nil {
		return RowOutcome{EntityID: personID, Error: err.Error()}
	}

	if err := o.resolveEvent(ctx, rec, personID, enrollmentID); err != nil {
		return RowOutcome{EntityID: personID, EnrollmentID: enrollmentID, Error: err.Error()}
	}

	return RowOutcome{Success: true, EntityID: personID, EnrollmentID: enrollmentID}
}

// resolvePerson returns the id of the person entity for the record's natural
// key, creating it when absent.
func (o *Orchestrator) resolvePerson(ctx context.Context, rec Record) (string, error) {
	key := NaturalKey{SystemID: rec[FieldSystemID], UUIC: rec[FieldUUIC]}

	// Cheap read-before-write: the common re-import path never pays for a
	// failed create.
	id, err := o.resolver.FindExisting(ctx, key, ScopeExactOrgUnit)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	outcome := o.store.Create(ctx, tracker.KindPerson, o.personPayload(rec))
	switch outcome.Kind {
	case tracker.OutcomeSuccess:
		if outcome.Reference != "" {
			return outcome.Reference, nil
		}
		// Accepted without an echoed id; the exact-scope read should now
		// see it.
		return o.recoverPerson(ctx, key)
	case tracker.OutcomeConflict:
		o.log.Debug().
			Str("systemId", key.SystemID).
			Str("details", outcome.Details).
			Msg("person create conflict; recovering")
		// Some responses echo the existing id even on conflict.
		if outcome.Reference != "" {
			return outcome.Reference, nil
		}
		return o.recoverPerson(ctx, key)
	default:
		return "", fmt.Errorf("create person: %s", outcome.Error())
	}
}

// recoverPerson re-runs the resolver at escalating scope after a conflict
// confirmed the entity exists, waiting before each re-query to absorb the
// store's read-after-write lag. Attempts are bounded by the retry policy.
func (o *Orchestrator) recoverPerson(ctx context.Context, key NaturalKey) (string, error) {
	ladder := []SearchScope{ScopeNoProgram, ScopeExactOrgUnit, ScopeUserHierarchy}
	if max := o.policy.MaxAttempts + 1; len(ladder) > max {
		ladder = ladder[:max]
	}

	for i, scope := range ladder {
		if err := o.sleeper.Wait(ctx, o.policy.Delay(i)); err != nil {
			return "", err
		}
		id, err := o.resolver.FindExisting(ctx, key, scope)
		if err != nil {
			return "", err
		}
		if id != "" {
			o.log.Debug().Str("scope", scope.String()).Str("entityId", id).Msg("conflict recovered")
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: System ID %q, UUIC %q", ErrConflictUnresolved, key.SystemID, key.UUIC)
}

func (o *Orchestrator) personPayload(rec Record) tracker.PersonPayload {
	p := tracker.PersonPayload{
		TrackedEntityType: o.m.TrackedEntityType,
		OrgUnit:           o.m.OrgUnit,
	}
	for f, attrID := range o.m.PersonAttributes {
		if v := rec[f]; v != "" {
			p.Attributes = append(p.Attributes, tracker.Attribute{Attribute: attrID, Value: v})
		}
	}
	return p
}

// resolveEnrollment returns the enrollment of (person, program), creating it
// when absent. At most one enrollment per pair is intended.
func (o *Orchestrator) resolveEnrollment(ctx context.Context, personID string, rec Record) (string, error) {
	existing, err := o.queryEnrollment(ctx, personID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	outcome := o.store.Create(ctx, tracker.KindEnrollment, tracker.EnrollmentPayload{
		TrackedEntityInstance: personID,
		Program:               o.m.Program,
		OrgUnit:               o.m.OrgUnit,
		EnrollmentDate:        o.eventDate(rec),
		IncidentDate:          o.eventDate(rec),
	})
	switch outcome.Kind {
	case tracker.OutcomeSuccess:
		if outcome.Reference != "" {
			return outcome.Reference, nil
		}
	case tracker.OutcomeConflict:
		if outcome.Reference != "" {
			return outcome.Reference, nil
		}
	default:
		return "", fmt.Errorf("create enrollment: %s", outcome.Error())
	}

	// Conflict (or success without a reference): the enrollment exists but
	// the list read may lag the write.
	if err := o.sleeper.Wait(ctx, o.policy.Delay(0)); err != nil {
		return "", err
	}
	existing, err = o.queryEnrollment(ctx, personID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	// Last resort, specific to enrollments: the person entity's own
	// enrollment list is the only read guaranteed to include it.
	entities, err := o.store.Query(ctx, tracker.KindEnrollment, tracker.Filters{"viaEntity": personID})
	if err != nil {
		return "", fmt.Errorf("read entity enrollments: %w", err)
	}
	for _, e := range entities {
		if e.Program == o.m.Program {
			return e.ID, nil
		}
	}
	return "", fmt.Errorf("%w: enrollment for person %s in program %s", ErrConflictUnresolved, personID, o.m.Program)
}

func (o *Orchestrator) queryEnrollment(ctx context.Context, personID string) (string, error) {
	entities, err := o.store.Query(ctx, tracker.KindEnrollment, tracker.Filters{
		"trackedEntityInstance": personID,
		"program":               o.m.Program,
	})
	if err != nil {
		return "", fmt.Errorf("query enrollments: %w", err)
	}
	if len(entities) == 0 {
		return "", nil
	}
	return entities[0].ID, nil
}

// resolveEvent reuses the most recent event under (enrollment, programStage)
// when one exists, updating it in place; otherwise it creates one. The store
// decides create-vs-update by the presence of an id in the payload, so the
// branch is on whether a prior event was found, not on an explicit verb.
func (o *Orchestrator) resolveEvent(ctx context.Context, rec Record, personID, enrollmentID string) error {
	existing, err := o.store.Query(ctx, tracker.KindEvent, tracker.Filters{
		"enrollment":   enrollmentID,
		"programStage": o.m.ProgramStage,
		"program":      o.m.Program,
		"order":        "eventDate:desc",
		"pageSize":     "1",
	})
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}

	payload := o.eventPayload(rec, personID, enrollmentID)

	if len(existing) > 0 {
		payload.Event = existing[0].ID
		outcome := o.store.Update(ctx, tracker.KindEvent, existing[0].ID, payload)
		if !outcome.Succeeded() {
			return fmt.Errorf("update event: %s", outcome.Error())
		}
		return nil
	}

	outcome := o.store.Create(ctx, tracker.KindEvent, payload)
	if outcome.Succeeded() {
		return nil
	}
	if !outcome.IsConflict() {
		return fmt.Errorf("create event: %s", outcome.Error())
	}

	// Duplicate event on the same date. Re-roll the date with enough entropy
	// to avoid a repeat collision and retry exactly once, without any id.
	payload.Event = ""
	payload.EventDate = now().Add(time.Duration(1+rand.Intn(71)) * time.Hour).Format("2006-01-02")
	retryOutcome := o.store.Create(ctx, tracker.KindEvent, payload)
	if !retryOutcome.Succeeded() {
		return fmt.Errorf("create event after date re-roll: %s", retryOutcome.Error())
	}
	return nil
}

func (o *Orchestrator) eventPayload(rec Record, personID, enrollmentID string) tracker.EventPayload {
	return tracker.EventPayload{
		TrackedEntityInstance: personID,
		Program:               o.m.Program,
		ProgramStage:          o.m.ProgramStage,
		Enrollment:            enrollmentID,
		OrgUnit:               o.m.OrgUnit,
		EventDate:             o.eventDate(rec),
		Status:                "COMPLETED",
		DataValues:            BuildDataValues(rec, o.m),
	}
}

func (o *Orchestrator) eventDate(rec Record) string {
	if d := rec[FieldScreeningDate]; d != "" {
		return d
	}
	return now().Format("2006-01-02")
}

// BuildDataValues maps a canonical record to event data values, skipping
// fields with no configured mapping, empty values, and non-true values for
// true-only data elements. When two canonical fields map to the same
// destination id the first-encountered value wins and the rest are silently
// skipped.
func BuildDataValues(rec Record, m *Mapping) []tracker.DataValue {
	order := make([]Field, 0, len(m.FieldOrder)+1)
	order = append(order, m.FieldOrder...)
	order = append(order, FieldRiskScreeningResult)

	used := make(map[string]bool)
	var out []tracker.DataValue
	for _, f := range order {
		deID, ok := m.DataElements[f]
		if !ok {
			continue
		}
		v := rec[f]
		if v == "" {
			continue
		}
		if m.TrueOnly[deID] && v != "true" {
			continue
		}
		if used[deID] {
			continue
		}
		used[deID] = true
		out = append(out, tracker.DataValue{DataElement: deID, Value: v})
	}
	return out
}
