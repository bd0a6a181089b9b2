package importer

import (
	"context"
	"fmt"

	"github.com/riskscreen/riskscreen/internal/platform/tracker"
)

// SearchScope selects how widely the resolver searches for an existing person
// entity. Scopes escalate only after a write-time conflict has confirmed the
// entity exists somewhere; the common new-record path never pays for the
// wider queries.
type SearchScope int

const (
	// ScopeExactOrgUnit filters by program and the exact configured org unit.
	ScopeExactOrgUnit SearchScope = iota
	// ScopeUserHierarchy widens to the full org-unit subtree the importing
	// user can see, keeping the program filter.
	ScopeUserHierarchy
	// ScopeNoProgram drops the program constraint entirely. Last resort: the
	// conflicting entity may live outside the program the caller imports
	// into.
	ScopeNoProgram
)

func (s SearchScope) String() string {
	switch s {
	case ScopeExactOrgUnit:
		return "exact-orgunit"
	case ScopeUserHierarchy:
		return "user-hierarchy"
	case ScopeNoProgram:
		return "no-program-filter"
	}
	return "unknown"
}

// NaturalKey is the pair of externally meaningful identifiers used to
// deduplicate person entities, since the store's own opaque id is not known
// before creation.
type NaturalKey struct {
	SystemID string
	UUIC     string
}

// Resolver finds existing person entities in the tracker store by natural
// key.
type Resolver struct {
	store tracker.Store
	m     *Mapping
}

func NewResolver(store tracker.Store, m *Mapping) *Resolver {
	return &Resolver{store: store, m: m}
}

// FindExisting searches for a person entity at the given scope, trying the
// systemId attribute first and falling back to uuic. Returns ("", nil) when
// nothing matches at that scope.
func (r *Resolver) FindExisting(ctx context.Context, key NaturalKey, scope SearchScope) (string, error) {
	type probe struct {
		attrID string
		value  string
	}
	probes := []probe{
		{r.m.PersonAttributes[FieldSystemID], key.SystemID},
		{r.m.PersonAttributes[FieldUUIC], key.UUIC},
	}

	for _, p := range probes {
		if p.attrID == "" || p.value == "" {
			continue
		}
		f := r.scopeFilters(scope)
		f["filter"] = fmt.Sprintf("%s:EQ:%s", p.attrID, p.value)
		entities, err := r.store.Query(ctx, tracker.KindPerson, f)
		if err != nil {
			return "", fmt.Errorf("lookup at scope %s: %w", scope, err)
		}
		if len(entities) > 0 {
			return entities[0].ID, nil
		}
	}
	return "", nil
}

func (r *Resolver) scopeFilters(scope SearchScope) tracker.Filters {
	f := tracker.Filters{
		"ou":       r.m.OrgUnit,
		"pageSize": "2",
		"fields":   "trackedEntityInstance,attributes[attribute,value]",
	}
	switch scope {
	case ScopeExactOrgUnit:
		f["ouMode"] = "SELECTED"
		f["program"] = r.m.Program
	case ScopeUserHierarchy:
		f["ouMode"] = "DESCENDANTS"
		f["program"] = r.m.Program
	case ScopeNoProgram:
		f["ouMode"] = "ACCESSIBLE"
	}
	return f
}
