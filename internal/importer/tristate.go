package importer

import "strings"

// TriState is the normalized value of a yes/no-style answer. Raw files carry
// these as 'Yes'/'No'/'true'/'1'/'Never Know' and friends; everything after
// validation switches on this enum, never on raw strings.
type TriState int

const (
	TriFalse TriState = iota
	TriTrue
	// TriUnknown means the answer exists but carries no information (e.g.
	// "Never Know"). It is rendered as an empty value and omitted from the
	// remote payload, which is not the same as false.
	TriUnknown
)

// String renders the canonical wire value: "true", "false", or "".
func (t TriState) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	}
	return ""
}

// baseBooleanSynonyms is the shared yes/no table applied to every boolean
// field before any per-field synonyms.
var baseBooleanSynonyms = map[string]TriState{
	"yes":   TriTrue,
	"y":     TriTrue,
	"true":  TriTrue,
	"1":     TriTrue,
	"oo":    TriTrue,
	"no":    TriFalse,
	"n":     TriFalse,
	"false": TriFalse,
	"0":     TriFalse,
	"hindi": TriFalse,
}

// ParseTriState normalizes a raw boolean answer for the given field. Returns
// ok=false when the value matches no synonym, in which case the caller keeps
// the raw value and records a warning.
func ParseTriState(f Field, raw string, m *Mapping) (TriState, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return TriUnknown, false
	}
	if extra, ok := m.BooleanSynonyms[f]; ok {
		if t, ok := extra[key]; ok {
			return t, true
		}
	}
	if t, ok := baseBooleanSynonyms[key]; ok {
		return t, true
	}
	return TriUnknown, false
}
