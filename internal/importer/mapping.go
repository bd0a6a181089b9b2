package importer

import (
	"encoding/json"
	"fmt"
	"io"
)

// Band is one tier band: scores at or above Min classify as Tier, unless a
// higher band also matches.
type Band struct {
	Min  int      `json:"min"`
	Tier RiskTier `json:"tier"`
}

// Mapping is the static configuration for one import run: canonical-field to
// remote-identifier maps, header synonyms, boolean synonym tables, the risk
// weight table, and the fixed program identifiers. It is built once per batch
// and passed explicitly into every component; nothing in the pipeline mutates
// it after construction.
type Mapping struct {
	// FieldOrder fixes the column order of the import template.
	FieldOrder []Field `json:"fieldOrder"`

	// RequiredFields must be non-empty after header mapping.
	RequiredFields []Field `json:"requiredFields"`

	// HeaderLabels lists accepted column labels per field. The first label is
	// the machine label used in the template's first header line.
	HeaderLabels map[Field][]string `json:"headerLabels"`

	// HumanLabels is the human-readable second header line of the template.
	// Data rows exactly matching these labels are discarded, not rejected.
	HumanLabels map[Field]string `json:"humanLabels"`

	// PersonAttributes maps canonical fields to person-entity attribute ids.
	PersonAttributes map[Field]string `json:"personAttributes"`

	// DataElements maps canonical fields to event data-element ids.
	DataElements map[Field]string `json:"dataElements"`

	// TrueOnly holds data-element ids that reject an explicit negative value;
	// absence is the only valid way to represent "false" for them.
	TrueOnly map[string]bool `json:"trueOnly"`

	// BooleanFields are normalized to canonical "true"/"false" strings.
	BooleanFields map[Field]bool `json:"booleanFields"`

	// BooleanSynonyms adds per-field value synonyms on top of the shared
	// yes/no table. everOnPrep's "Never Know" third state lives here.
	BooleanSynonyms map[Field]map[string]TriState `json:"booleanSynonyms"`

	// Weights is the risk weight table. For boolean fields the weight applies
	// when the value is true; for hivTestResult it applies when the value is
	// "Positive". These are clinical constants, not derivable logic.
	Weights map[Field]int `json:"weights"`

	// Bands maps total score to tier, highest Min first.
	Bands []Band `json:"bands"`

	// Fixed remote identifiers.
	Program           string `json:"program"`
	ProgramStage      string `json:"programStage"`
	TrackedEntityType string `json:"trackedEntityType"`
	OrgUnit           string `json:"orgUnit"`
}

// DefaultMapping returns the built-in mapping table. The weight table and
// tier bands are the authoritative scoring contract; tests assume these exact
// values.
func DefaultMapping() *Mapping {
	return &Mapping{
		FieldOrder: []Field{
			FieldSystemID, FieldUUIC, FieldSex, FieldDateOfBirth, FieldScreeningDate,
			FieldEverHadSex, FieldSexWithoutCondom, FieldNumberOfSexualPartners,
			FieldMultipleSexPartners, FieldTransactionalSex, FieldPartnerHIVPositive,
			FieldPartnerInjectsDrugs, FieldPartnerMale, FieldPartnerFemale,
			FieldAlcoholDrugsBeforeSex, FieldInjectedDrugs, FieldSharedNeedle,
			FieldSTIDiagnosed, FieldSTISymptoms, FieldHIVTested, FieldHIVTestResult,
			FieldEverOnPrep, FieldCurrentlyOnPrep, FieldForcedSex, FieldPregnant,
			FieldRiskScreeningScore,
		},
		RequiredFields: []Field{FieldSex, FieldDateOfBirth},
		HeaderLabels: map[Field][]string{
			FieldSystemID:               {"System ID", "system_id", "SysID", "Client Code"},
			FieldUUIC:                   {"UUIC", "UIC", "Unique Identifier Code"},
			FieldSex:                    {"Sex", "Gender"},
			FieldDateOfBirth:            {"Date of Birth", "DOB", "Birthdate", "Birth Date"},
			FieldAge:                    {"Age"},
			FieldScreeningDate:          {"Screening Date", "Date of Screening", "Visit Date"},
			FieldEverHadSex:             {"Ever Had Sex", "Has Had Sexual Experience"},
			FieldSexWithoutCondom:       {"Sex Without Condom", "Unprotected Sex", "Condomless Sex"},
			FieldNumberOfSexualPartners: {"Number of Sexual Partners", "No. of Partners", "Sexual Partners"},
			FieldMultipleSexPartners:    {"Multiple Sex Partners", "More Than One Partner"},
			FieldTransactionalSex:       {"Transactional Sex", "Paid or Received Money for Sex", "Sex Work"},
			FieldPartnerHIVPositive:     {"Partner HIV Positive", "HIV Positive Partner"},
			FieldPartnerInjectsDrugs:    {"Partner Injects Drugs", "Partner PWID"},
			FieldPartnerMale:            {"Male Partner", "Partner Male"},
			FieldPartnerFemale:          {"Female Partner", "Partner Female"},
			FieldAlcoholDrugsBeforeSex:  {"Alcohol or Drugs Before Sex", "Drug Use Before Sex", "Substance Use Before Sex"},
			FieldInjectedDrugs:          {"Injected Drugs", "Injecting Drug Use"},
			FieldSharedNeedle:           {"Shared Needle", "Needle Sharing", "Shared Injecting Equipment"},
			FieldSTIDiagnosed:           {"STI Diagnosed", "Diagnosed With STI", "STI History"},
			FieldSTISymptoms:            {"STI Symptoms", "Current STI Symptoms"},
			FieldHIVTested:              {"HIV Tested", "Ever Tested for HIV"},
			FieldHIVTestResult:          {"HIV Test Result", "Last HIV Result"},
			FieldEverOnPrep:             {"Ever on PrEP", "PrEP Ever"},
			FieldCurrentlyOnPrep:        {"Currently on PrEP", "On PrEP Now"},
			FieldForcedSex:              {"Forced Sex", "Sexual Violence", "Forced Sexual Encounter"},
			FieldPregnant:               {"Pregnant", "Currently Pregnant"},
			FieldRiskScreeningScore:     {"Risk Screening Score", "Risk Score"},
			FieldRiskScreeningResult:    {"Risk Screening Result", "Risk Level", "Risk Category"},
		},
		HumanLabels: map[Field]string{
			FieldSystemID:               "Client system identifier",
			FieldUUIC:                   "Unique user identifier code",
			FieldSex:                    "Sex assigned at birth",
			FieldDateOfBirth:            "Date of birth (YYYY-MM-DD)",
			FieldScreeningDate:          "Date the screening was done (YYYY-MM-DD)",
			FieldEverHadSex:             "Has the client ever had sex?",
			FieldSexWithoutCondom:       "Had sex without a condom in the last 12 months?",
			FieldNumberOfSexualPartners: "Number of sexual partners in the last 12 months",
			FieldMultipleSexPartners:    "More than one sexual partner in the last 12 months?",
			FieldTransactionalSex:       "Paid for sex or received money/goods for sex?",
			FieldPartnerHIVPositive:     "Any sexual partner known to be HIV positive?",
			FieldPartnerInjectsDrugs:    "Any sexual partner who injects drugs?",
			FieldPartnerMale:            "Any male sexual partner?",
			FieldPartnerFemale:          "Any female sexual partner?",
			FieldAlcoholDrugsBeforeSex:  "Used alcohol or drugs before sex?",
			FieldInjectedDrugs:          "Ever injected drugs?",
			FieldSharedNeedle:           "Ever shared a needle or injecting equipment?",
			FieldSTIDiagnosed:           "Ever diagnosed with a sexually transmitted infection?",
			FieldSTISymptoms:            "Current STI symptoms?",
			FieldHIVTested:              "Ever tested for HIV?",
			FieldHIVTestResult:          "Result of the last HIV test",
			FieldEverOnPrep:             "Ever been on PrEP?",
			FieldCurrentlyOnPrep:        "Currently taking PrEP?",
			FieldForcedSex:              "Ever experienced forced sex?",
			FieldPregnant:               "Currently pregnant?",
			FieldRiskScreeningScore:     "Pre-computed risk score (leave blank to compute)",
		},
		PersonAttributes: map[Field]string{
			FieldSystemID:    "ePnTqKxBvWj",
			FieldUUIC:        "rYbMcVdXsQz",
			FieldSex:         "mKaQJpNtVwH",
			FieldDateOfBirth: "uFxRbTnWpYs",
			FieldAge:         "gWzQnLtMvXc",
		},
		DataElements: map[Field]string{
			FieldEverHadSex:             "hQpLbNvRtXe",
			FieldSexWithoutCondom:       "jTkVbWnXcZq",
			FieldNumberOfSexualPartners: "kRmWcXpYdAs",
			FieldMultipleSexPartners:    "nSvXdYqZeBt",
			FieldTransactionalSex:       "pUwYeZrAfCv",
			FieldPartnerHIVPositive:     "qVxZfAsBgDw",
			FieldPartnerInjectsDrugs:    "rWyAgBtChEx",
			FieldPartnerMale:            "sXzBhCuDjFy",
			FieldPartnerFemale:          "tYaCjDvEkGz",
			FieldAlcoholDrugsBeforeSex:  "uZbDkEwFmHa",
			FieldInjectedDrugs:          "vAcEmFxGnJb",
			FieldSharedNeedle:           "wBdFnGyHpKc",
			FieldSTIDiagnosed:           "xCeGpHzJqLd",
			FieldSTISymptoms:            "yDfHqJaKrMe",
			FieldHIVTested:              "zEgJrKbLsNf",
			FieldHIVTestResult:          "aFhKsLcMtPg",
			FieldEverOnPrep:             "bGjLtMdNuQh",
			FieldCurrentlyOnPrep:        "cHkMuNeQvRj",
			FieldForcedSex:              "dJlNvPfRwSk",
			FieldPregnant:               "eKmPwQgSxTl",
			FieldRiskScreeningScore:     "fLnQxRhTySm",
			FieldRiskScreeningResult:    "gMpRySjUzVn",
		},
		TrueOnly: map[string]bool{
			"sXzBhCuDjFy": true, // partnerMale
			"tYaCjDvEkGz": true, // partnerFemale
		},
		BooleanFields: map[Field]bool{
			FieldEverHadSex: true, FieldSexWithoutCondom: true,
			FieldMultipleSexPartners: true, FieldTransactionalSex: true,
			FieldPartnerHIVPositive: true, FieldPartnerInjectsDrugs: true,
			FieldPartnerMale: true, FieldPartnerFemale: true,
			FieldAlcoholDrugsBeforeSex: true, FieldInjectedDrugs: true,
			FieldSharedNeedle: true, FieldSTIDiagnosed: true,
			FieldSTISymptoms: true, FieldHIVTested: true,
			FieldEverOnPrep: true, FieldCurrentlyOnPrep: true,
			FieldForcedSex: true, FieldPregnant: true,
		},
		BooleanSynonyms: map[Field]map[string]TriState{
			FieldEverOnPrep: {
				"never know":  TriUnknown,
				"never known": TriUnknown,
				"dont know":   TriUnknown,
				"don't know":  TriUnknown,
				"unknown":     TriUnknown,
			},
		},
		Weights: map[Field]int{
			FieldHIVTestResult:         25,
			FieldSharedNeedle:          15,
			FieldSexWithoutCondom:      15,
			FieldInjectedDrugs:         12,
			FieldPartnerHIVPositive:    10,
			FieldTransactionalSex:      10,
			FieldSTIDiagnosed:          10,
			FieldMultipleSexPartners:   8,
			FieldAlcoholDrugsBeforeSex: 8,
			FieldForcedSex:             5,
		},
		Bands: []Band{
			{Min: 50, Tier: TierVeryHigh},
			{Min: 30, Tier: TierHigh},
			{Min: 15, Tier: TierMedium},
			{Min: 5, Tier: TierLow},
			{Min: 0, Tier: TierVeryLow},
		},
		Program:           "PrHIVrisk01",
		ProgramStage:      "PsScreening",
		TrackedEntityType: "TePerson001",
	}
}

// LoadMapping reads a JSON mapping document layered over the defaults, so a
// deployment only has to supply the identifiers that differ from the built-in
// table.
func LoadMapping(r io.Reader) (*Mapping, error) {
	m := DefaultMapping()
	if err := json.NewDecoder(r).Decode(m); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the internal consistency of the mapping table.
func (m *Mapping) Validate() error {
	if len(m.RequiredFields) == 0 {
		return fmt.Errorf("mapping has no required fields")
	}
	for _, f := range m.RequiredFields {
		if len(m.HeaderLabels[f]) == 0 {
			return fmt.Errorf("required field %s has no header labels", f)
		}
	}
	if len(m.Bands) == 0 {
		return fmt.Errorf("mapping has no tier bands")
	}
	for i := 1; i < len(m.Bands); i++ {
		if m.Bands[i].Min >= m.Bands[i-1].Min {
			return fmt.Errorf("tier bands must be ordered highest first")
		}
	}
	return nil
}

// TierForScore maps a total score to its band.
func (m *Mapping) TierForScore(score int) RiskTier {
	for _, b := range m.Bands {
		if score >= b.Min {
			return b.Tier
		}
	}
	return m.Bands[len(m.Bands)-1].Tier
}

// Label returns the machine label for a field (the first configured header
// label), falling back to the field key itself.
func (m *Mapping) Label(f Field) string {
	if labels := m.HeaderLabels[f]; len(labels) > 0 {
		return labels[0]
	}
	return string(f)
}
