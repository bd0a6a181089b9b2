package importer

import (
	"context"
	"fmt"
	"testing"

	"github.com/riskscreen/riskscreen/internal/platform/tracker"
)

func TestFindExisting_ScopeFilters(t *testing.T) {
	m := testMapping()
	key := NaturalKey{SystemID: "SYS-0001"}

	tests := []struct {
		scope       SearchScope
		ouMode      string
		wantProgram bool
	}{
		{ScopeExactOrgUnit, "SELECTED", true},
		{ScopeUserHierarchy, "DESCENDANTS", true},
		{ScopeNoProgram, "ACCESSIBLE", false},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			store := &fakeStore{}
			r := NewResolver(store, m)

			if _, err := r.FindExisting(context.Background(), key, tt.scope); err != nil {
				t.Fatalf("FindExisting: %v", err)
			}
			if len(store.queries) != 1 {
				t.Fatalf("queries = %d, want 1", len(store.queries))
			}
			f := store.queries[0].filters
			if f["ouMode"] != tt.ouMode {
				t.Errorf("ouMode = %q, want %q", f["ouMode"], tt.ouMode)
			}
			if f["ou"] != m.OrgUnit {
				t.Errorf("ou = %q, want %q", f["ou"], m.OrgUnit)
			}
			if _, ok := f["program"]; ok != tt.wantProgram {
				t.Errorf("program filter present = %v, want %v", ok, tt.wantProgram)
			}
			wantFilter := fmt.Sprintf("%s:EQ:%s", m.PersonAttributes[FieldSystemID], key.SystemID)
			if f["filter"] != wantFilter {
				t.Errorf("filter = %q, want %q", f["filter"], wantFilter)
			}
		})
	}
}

func TestFindExisting_FallsBackToUUIC(t *testing.T) {
	m := testMapping()
	uuicFilter := fmt.Sprintf("%s:EQ:%s", m.PersonAttributes[FieldUUIC], "ANA0398")

	store := &fakeStore{
		queryFn: func(_ tracker.ResourceKind, f tracker.Filters) ([]tracker.Entity, error) {
			if f["filter"] == uuicFilter {
				return []tracker.Entity{{ID: "byUuic01"}}, nil
			}
			return nil, nil
		},
	}
	r := NewResolver(store, m)

	id, err := r.FindExisting(context.Background(),
		NaturalKey{SystemID: "SYS-0001", UUIC: "ANA0398"}, ScopeExactOrgUnit)
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if id != "byUuic01" {
		t.Errorf("id = %q, want byUuic01", id)
	}
	if len(store.queries) != 2 {
		t.Errorf("queries = %d, want systemId probe then uuic probe", len(store.queries))
	}
}

func TestFindExisting_SystemIDHitSkipsUUIC(t *testing.T) {
	m := testMapping()
	store := &fakeStore{
		queryFn: func(tracker.ResourceKind, tracker.Filters) ([]tracker.Entity, error) {
			return []tracker.Entity{{ID: "bySys01"}}, nil
		},
	}
	r := NewResolver(store, m)

	id, err := r.FindExisting(context.Background(),
		NaturalKey{SystemID: "SYS-0001", UUIC: "ANA0398"}, ScopeExactOrgUnit)
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if id != "bySys01" {
		t.Errorf("id = %q, want bySys01", id)
	}
	if len(store.queries) != 1 {
		t.Errorf("queries = %d, want the uuic probe skipped after a hit", len(store.queries))
	}
}

func TestFindExisting_NoMatch(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, testMapping())

	id, err := r.FindExisting(context.Background(),
		NaturalKey{SystemID: "SYS-0001", UUIC: "ANA0398"}, ScopeNoProgram)
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if id != "" {
		t.Errorf("id = %q, want empty on no match", id)
	}
}

func TestFindExisting_EmptyKeySkipsProbes(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, testMapping())

	id, err := r.FindExisting(context.Background(), NaturalKey{}, ScopeExactOrgUnit)
	if err != nil {
		t.Fatalf("FindExisting: %v", err)
	}
	if id != "" || len(store.queries) != 0 {
		t.Errorf("id = %q, queries = %d; want no queries for an empty key", id, len(store.queries))
	}
}
