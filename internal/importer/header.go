package importer

import "strings"

// normalizeHeader lowercases a column header and strips everything that is
// not a letter or digit, so "Date of Birth", "date_of_birth" and "DATE-OF-
// BIRTH" all collapse to the same lookup key.
func normalizeHeader(h string) string {
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// synonymIndex precomputes normalized-label -> canonical field from the
// mapping's label lists. The canonical field key itself is always accepted.
func synonymIndex(m *Mapping) map[string]Field {
	idx := make(map[string]Field)
	for f, labels := range m.HeaderLabels {
		idx[normalizeHeader(string(f))] = f
		for _, l := range labels {
			idx[normalizeHeader(l)] = f
		}
	}
	return idx
}

// ResolveHeaders maps a raw header row to canonical fields by column index.
// Headers with no match are dropped silently so files with extra columns
// import cleanly.
func ResolveHeaders(header []string, m *Mapping) map[int]Field {
	idx := synonymIndex(m)
	out := make(map[int]Field)
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if f, ok := idx[key]; ok {
			out[i] = f
		}
	}
	return out
}

// IsTranslationRow reports whether a data row is actually the template's
// human-readable second header line, re-submitted unchanged. Matched rows are
// discarded as a data-quality guard, not reported as a validation error.
func IsTranslationRow(cells []string, headers map[int]Field, m *Mapping) bool {
	matched := 0
	for i, cell := range cells {
		f, ok := headers[i]
		if !ok {
			continue
		}
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if cell != m.HumanLabels[f] {
			return false
		}
		matched++
	}
	return matched > 0
}
