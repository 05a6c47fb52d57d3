// Package cerner adapts Oracle Health (Cerner) Millennium FHIR R4
// endpoints to the unified client contract. Cerner tags the MRN with a
// plain-text identifier type rather than a v2-0203 coding, omits
// effectiveDateTime on some vital-sign profiles (issued is used as the
// fallback timestamp), and fills coding displays while leaving
// CodeableConcept.text empty on medications.
package cerner

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/ehr-gateway/internal/domain/unified"
	"github.com/ehr/ehr-gateway/internal/platform/fhir"
)

var errNoMatch = errors.New("no patient matched identifier search")

type Client struct {
	rest   *fhir.RESTClient
	logger zerolog.Logger
}

func New(rest *fhir.RESTClient, logger zerolog.Logger) *Client {
	return &Client{rest: rest, logger: logger.With().Str("vendor", "cerner").Logger()}
}

func (c *Client) System() unified.VendorSystem {
	return unified.Cerner
}

func (c *Client) PatientByID(ctx context.Context, id string) (*unified.PatientRecord, error) {
	var p fhir.Patient
	if err := c.rest.Read(ctx, "Patient", id, &p); err != nil {
		return nil, unified.NewFetchError(unified.Cerner, "patient_by_id", err)
	}
	return c.mapPatient(&p), nil
}

func (c *Client) PatientByMRN(ctx context.Context, mrn string) (*unified.PatientRecord, error) {
	bundle, err := c.rest.Search(ctx, "Patient", url.Values{"identifier": {mrn}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Cerner, "patient_by_mrn", err)
	}
	patients := fhir.Resources[fhir.Patient](bundle, "Patient")
	if len(patients) == 0 {
		return nil, &unified.FetchError{System: unified.Cerner, Kind: unified.FetchNotFound, Op: "patient_by_mrn", Err: errNoMatch}
	}
	return c.mapPatient(&patients[0]), nil
}

func (c *Client) SearchPatientsByName(ctx context.Context, name string) ([]unified.PatientRecord, error) {
	bundle, err := c.rest.Search(ctx, "Patient", url.Values{"name": {name}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Cerner, "search_patients", err)
	}
	var records []unified.PatientRecord
	for _, p := range fhir.Resources[fhir.Patient](bundle, "Patient") {
		records = append(records, *c.mapPatient(&p))
	}
	return records, nil
}

func (c *Client) PatientVitals(ctx context.Context, id string) ([]unified.VitalSign, error) {
	var vitals []unified.VitalSign
	for _, vc := range unified.VitalCodes {
		bundle, err := c.rest.Search(ctx, "Observation", url.Values{
			"patient":  {id},
			"code":     {"http://loinc.org|" + vc.Code},
			"category": {"vital-signs"},
			"_sort":    {"-date"},
			"_count":   {"1"},
		})
		if err != nil {
			return nil, unified.NewFetchError(unified.Cerner, "patient_vitals", err)
		}
		obs := fhir.Resources[fhir.Observation](bundle, "Observation")
		if len(obs) == 0 {
			continue
		}
		if v, ok := mapVital(&obs[0], vc); ok {
			vitals = append(vitals, v)
		}
	}
	return vitals, nil
}

// PatientConditions lists active conditions. Millennium rejects the
// clinical-status search parameter on some domains, so the filter runs
// client-side.
func (c *Client) PatientConditions(ctx context.Context, id string) ([]string, error) {
	bundle, err := c.rest.Search(ctx, "Condition", url.Values{"patient": {id}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Cerner, "patient_conditions", err)
	}
	var names []string
	for _, cond := range fhir.Resources[fhir.Condition](bundle, "Condition") {
		if !isActiveCondition(&cond) {
			continue
		}
		if name := cond.Code.DisplayText(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func isActiveCondition(cond *fhir.Condition) bool {
	if cond.ClinicalStatus == nil {
		return true
	}
	if cond.ClinicalStatus.HasCoding("", "active") {
		return true
	}
	return strings.EqualFold(cond.ClinicalStatus.Text, "active")
}

func (c *Client) PatientAllergies(ctx context.Context, id string) ([]string, error) {
	bundle, err := c.rest.Search(ctx, "AllergyIntolerance", url.Values{"patient": {id}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Cerner, "patient_allergies", err)
	}
	var names []string
	for _, a := range fhir.Resources[fhir.AllergyIntolerance](bundle, "AllergyIntolerance") {
		if name := a.Code.DisplayText(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *Client) PatientMedications(ctx context.Context, id string) ([]string, error) {
	bundle, err := c.rest.Search(ctx, "MedicationRequest", url.Values{
		"patient": {id},
		"status":  {"active"},
	})
	if err != nil {
		return nil, unified.NewFetchError(unified.Cerner, "patient_medications", err)
	}
	var names []string
	for _, m := range fhir.Resources[fhir.MedicationRequest](bundle, "MedicationRequest") {
		// Cerner leaves text empty and fills coding displays.
		if name := m.MedicationCodeableConcept.CodingDisplay(); name != "" {
			names = append(names, name)
		} else if name := m.MedicationDisplay(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *Client) PatientEncounters(ctx context.Context, id string) ([]unified.EncounterRecord, error) {
	bundle, err := c.rest.Search(ctx, "Encounter", url.Values{
		"patient": {id},
		"_count":  {"10"},
	})
	if err != nil {
		return nil, unified.NewFetchError(unified.Cerner, "patient_encounters", err)
	}
	var encs []unified.EncounterRecord
	for _, e := range fhir.Resources[fhir.Encounter](bundle, "Encounter") {
		rec := unified.EncounterRecord{ID: e.ID, Status: e.Status}
		if len(e.Type) > 0 {
			rec.Type = e.Type[0].DisplayText()
		} else if e.Class != nil {
			rec.Type = e.Class.Display
		}
		if e.Period != nil {
			rec.Start = e.Period.Start
		}
		encs = append(encs, rec)
	}
	return encs, nil
}

func (c *Client) mapPatient(p *fhir.Patient) *unified.PatientRecord {
	return &unified.PatientRecord{
		ID:          p.ID,
		MRN:         extractMRN(p),
		Name:        p.DisplayName(),
		DateOfBirth: p.BirthDate,
		Gender:      p.Gender,
		EHRSystem:   unified.Cerner,
	}
}

// extractMRN matches the identifier whose type text reads "MRN".
// Millennium does not emit the v2-0203 MR coding.
func extractMRN(p *fhir.Patient) string {
	for _, ident := range p.Identifier {
		if ident.Type != nil && strings.EqualFold(ident.Type.Text, "MRN") {
			return ident.Value
		}
	}
	return ""
}

func mapVital(o *fhir.Observation, vc unified.VitalCode) (unified.VitalSign, bool) {
	v := unified.VitalSign{Code: vc.Code, Name: vc.Name}
	if t, ok := o.EffectiveTime(); ok {
		v.Timestamp = &t
	}
	switch {
	case o.ValueQuantity != nil:
		v.Value = o.ValueQuantity.Value.String()
		v.Unit = o.ValueQuantity.Unit
	case o.ValueString != "":
		v.Value = o.ValueString
	default:
		return v, false
	}
	return v, true
}
