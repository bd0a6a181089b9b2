package importer

import (
	"strconv"
	"strings"
)

// ScoreResult is the risk scorer's output: the weighted score, its ordinal
// tier, the factors that contributed, and advisory recommendations derived
// from individual triggers independent of the score.
type ScoreResult struct {
	Score           int      `json:"riskScreeningScore"`
	Tier            RiskTier `json:"riskScreeningResult"`
	Factors         []string `json:"riskFactors"`
	Recommendations []string `json:"recommendations"`
}

// Score computes the risk classification for a canonical record. It is
// referentially transparent: no clock, no I/O, identical input always yields
// identical output. When the record already carries an explicit positive
// score that value is used unchanged and only the tier is derived from it.
func Score(rec Record, m *Mapping) ScoreResult {
	var res ScoreResult

	for _, f := range m.FieldOrder {
		w, ok := m.Weights[f]
		if !ok || f == FieldRiskScreeningScore {
			continue
		}
		if factorActive(f, rec) {
			res.Score += w
			res.Factors = append(res.Factors, string(f))
		}
	}

	if v := rec[FieldRiskScreeningScore]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			res.Score = n
		}
	}

	res.Tier = m.TierForScore(res.Score)
	res.Recommendations = recommendations(rec)
	return res
}

// factorActive reports whether one weighted risk factor applies. Most factors
// are plain booleans; the HIV test result triggers on a positive result and
// multiple partners also triggers off the partner count.
func factorActive(f Field, rec Record) bool {
	switch f {
	case FieldHIVTestResult:
		return strings.EqualFold(rec[f], "positive")
	case FieldMultipleSexPartners:
		if rec[f] == "true" {
			return true
		}
		n, err := strconv.Atoi(rec[FieldNumberOfSexualPartners])
		return err == nil && n > 1
	default:
		return rec[f] == "true"
	}
}

func recommendations(rec Record) []string {
	var recs []string
	isTrue := func(f Field) bool { return rec[f] == "true" }
	hivPositive := strings.EqualFold(rec[FieldHIVTestResult], "positive")

	sexualOrInjectionRisk := isTrue(FieldSexWithoutCondom) ||
		factorActive(FieldMultipleSexPartners, rec) ||
		isTrue(FieldTransactionalSex) ||
		isTrue(FieldPartnerHIVPositive) ||
		isTrue(FieldInjectedDrugs) ||
		isTrue(FieldSharedNeedle)

	if hivPositive {
		recs = append(recs, "Link to HIV care and treatment")
	} else if sexualOrInjectionRisk {
		recs = append(recs, "Recommend HIV testing")
	}
	if !hivPositive && rec[FieldCurrentlyOnPrep] != "true" &&
		(isTrue(FieldSexWithoutCondom) || isTrue(FieldPartnerHIVPositive) || isTrue(FieldTransactionalSex)) {
		recs = append(recs, "Recommend PrEP eligibility assessment")
	}
	if isTrue(FieldInjectedDrugs) || isTrue(FieldSharedNeedle) {
		recs = append(recs, "Refer to harm reduction services")
	}
	if isTrue(FieldSexWithoutCondom) {
		recs = append(recs, "Provide condom use counseling")
	}
	if isTrue(FieldSTIDiagnosed) || isTrue(FieldSTISymptoms) {
		recs = append(recs, "Refer for STI screening and treatment")
	}
	if isTrue(FieldForcedSex) {
		recs = append(recs, "Refer to post-violence support services")
	}
	return recs
}
