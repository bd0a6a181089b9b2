package importer

import "testing"

func TestParseTriState(t *testing.T) {
	m := DefaultMapping()

	tests := []struct {
		field Field
		raw   string
		want  TriState
		ok    bool
	}{
		{FieldSexWithoutCondom, "Yes", TriTrue, true},
		{FieldSexWithoutCondom, "y", TriTrue, true},
		{FieldSexWithoutCondom, "TRUE", TriTrue, true},
		{FieldSexWithoutCondom, "1", TriTrue, true},
		{FieldSexWithoutCondom, "Oo", TriTrue, true},
		{FieldSexWithoutCondom, "No", TriFalse, true},
		{FieldSexWithoutCondom, "n", TriFalse, true},
		{FieldSexWithoutCondom, "0", TriFalse, true},
		{FieldSexWithoutCondom, "Hindi", TriFalse, true},
		{FieldSexWithoutCondom, "  yes  ", TriTrue, true},
		{FieldSexWithoutCondom, "maybe", TriUnknown, false},
		{FieldSexWithoutCondom, "", TriUnknown, false},

		// everOnPrep carries a real third state.
		{FieldEverOnPrep, "Never Know", TriUnknown, true},
		{FieldEverOnPrep, "don't know", TriUnknown, true},
		{FieldEverOnPrep, "Unknown", TriUnknown, true},
		{FieldEverOnPrep, "Yes", TriTrue, true},

		// The third-state synonyms are per-field, not global.
		{FieldSexWithoutCondom, "Never Know", TriUnknown, false},
	}
	for _, tt := range tests {
		got, ok := ParseTriState(tt.field, tt.raw, m)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTriState(%s, %q) = (%v, %v), want (%v, %v)",
				tt.field, tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTriStateString(t *testing.T) {
	if TriTrue.String() != "true" || TriFalse.String() != "false" || TriUnknown.String() != "" {
		t.Errorf("TriState renderings wrong: %q %q %q",
			TriTrue.String(), TriFalse.String(), TriUnknown.String())
	}
}
