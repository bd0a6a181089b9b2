// Package importer implements the screening-record import pipeline: header
// resolution, row validation and transformation, risk scoring, and the
// conflict-tolerant upsert of each record against the remote tracker store.
package importer

// Field is a canonical field key. Raw column headers from human-authored
// files are resolved to these keys before any other processing.
type Field string

const (
	FieldSystemID      Field = "systemId"
	FieldUUIC          Field = "uuic"
	FieldSex           Field = "sex"
	FieldDateOfBirth   Field = "dateOfBirth"
	FieldAge           Field = "age"
	FieldScreeningDate Field = "screeningDate"

	FieldEverHadSex             Field = "everHadSex"
	FieldSexWithoutCondom       Field = "sexWithoutCondom"
	FieldNumberOfSexualPartners Field = "numberOfSexualPartners"
	FieldMultipleSexPartners    Field = "multipleSexPartners"
	FieldTransactionalSex       Field = "transactionalSex"
	FieldPartnerHIVPositive     Field = "partnerHIVPositive"
	FieldPartnerInjectsDrugs    Field = "partnerInjectsDrugs"
	FieldPartnerMale            Field = "partnerMale"
	FieldPartnerFemale          Field = "partnerFemale"
	FieldAlcoholDrugsBeforeSex  Field = "alcoholDrugsBeforeSex"
	FieldInjectedDrugs          Field = "injectedDrugs"
	FieldSharedNeedle           Field = "sharedNeedle"
	FieldSTIDiagnosed           Field = "stiDiagnosed"
	FieldSTISymptoms            Field = "stiSymptoms"
	FieldHIVTested              Field = "hivTested"
	FieldHIVTestResult          Field = "hivTestResult"
	FieldEverOnPrep             Field = "everOnPrep"
	FieldCurrentlyOnPrep        Field = "currentlyOnPrep"
	FieldForcedSex              Field = "forcedSex"
	FieldPregnant               Field = "pregnant"

	FieldRiskScreeningScore  Field = "riskScreeningScore"
	FieldRiskScreeningResult Field = "riskScreeningResult"
)

// Record is one canonical screening record: canonical field key to string
// value. Built once by the validator and never mutated afterward.
type Record map[Field]string

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ValidationResult is the outcome of validating and transforming one raw row.
// IsValid is true iff Errors is empty; invalid rows are skipped by the
// orchestrator but the record is still materialized so callers can show why.
type ValidationResult struct {
	Data     Record   `json:"data"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	IsValid  bool     `json:"isValid"`
}

// RiskTier is the ordinal risk classification derived from the screening
// score.
type RiskTier string

const (
	TierVeryLow  RiskTier = "Very Low"
	TierLow      RiskTier = "Low"
	TierMedium   RiskTier = "Medium"
	TierHigh     RiskTier = "High"
	TierVeryHigh RiskTier = "Very High"
)
