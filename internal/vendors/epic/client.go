// Package epic adapts Epic's FHIR R4 endpoint to the unified client
// contract. Epic carries the MRN under identifier type v2-0203/MR, stamps
// effectiveDateTime on vital observations, and reports blood pressure as
// a panel observation with component values, so single-code BP queries
// fall back to component extraction.
package epic

import (
	"context"
	"errors"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/ehr/ehr-gateway/internal/domain/unified"
	"github.com/ehr/ehr-gateway/internal/platform/fhir"
)

const identifierTypeSystem = "http://terminology.hl7.org/CodeSystem/v2-0203"

var errNoMatch = errors.New("no patient matched identifier search")

type Client struct {
	rest   *fhir.RESTClient
	logger zerolog.Logger
}

func New(rest *fhir.RESTClient, logger zerolog.Logger) *Client {
	return &Client{rest: rest, logger: logger.With().Str("vendor", "epic").Logger()}
}

func (c *Client) System() unified.VendorSystem {
	return unified.Epic
}

func (c *Client) PatientByID(ctx context.Context, id string) (*unified.PatientRecord, error) {
	var p fhir.Patient
	if err := c.rest.Read(ctx, "Patient", id, &p); err != nil {
		return nil, unified.NewFetchError(unified.Epic, "patient_by_id", err)
	}
	return c.mapPatient(&p), nil
}

func (c *Client) PatientByMRN(ctx context.Context, mrn string) (*unified.PatientRecord, error) {
	bundle, err := c.rest.Search(ctx, "Patient", url.Values{"identifier": {mrn}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Epic, "patient_by_mrn", err)
	}
	patients := fhir.Resources[fhir.Patient](bundle, "Patient")
	if len(patients) == 0 {
		return nil, &unified.FetchError{System: unified.Epic, Kind: unified.FetchNotFound, Op: "patient_by_mrn", Err: errNoMatch}
	}
	return c.mapPatient(&patients[0]), nil
}

func (c *Client) SearchPatientsByName(ctx context.Context, name string) ([]unified.PatientRecord, error) {
	bundle, err := c.rest.Search(ctx, "Patient", url.Values{"name": {name}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Epic, "search_patients", err)
	}
	var records []unified.PatientRecord
	for _, p := range fhir.Resources[fhir.Patient](bundle, "Patient") {
		records = append(records, *c.mapPatient(&p))
	}
	return records, nil
}

// PatientVitals queries each LOINC code in the fixed list for its single
// most recent reading. Codes with no data are skipped; order is the code
// list order.
func (c *Client) PatientVitals(ctx context.Context, id string) ([]unified.VitalSign, error) {
	var vitals []unified.VitalSign
	for _, vc := range unified.VitalCodes {
		bundle, err := c.rest.Search(ctx, "Observation", url.Values{
			"patient":  {id},
			"code":     {vc.Code},
			"category": {"vital-signs"},
			"_sort":    {"-date"},
			"_count":   {"1"},
		})
		if err != nil {
			return nil, unified.NewFetchError(unified.Epic, "patient_vitals", err)
		}
		obs := fhir.Resources[fhir.Observation](bundle, "Observation")
		if len(obs) == 0 {
			continue
		}
		if v, ok := c.mapVital(&obs[0], vc); ok {
			vitals = append(vitals, v)
		}
	}
	return vitals, nil
}

func (c *Client) PatientConditions(ctx context.Context, id string) ([]string, error) {
	bundle, err := c.rest.Search(ctx, "Condition", url.Values{
		"patient":         {id},
		"clinical-status": {"active"},
	})
	if err != nil {
		return nil, unified.NewFetchError(unified.Epic, "patient_conditions", err)
	}
	var names []string
	for _, cond := range fhir.Resources[fhir.Condition](bundle, "Condition") {
		if name := cond.Code.DisplayText(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *Client) PatientAllergies(ctx context.Context, id string) ([]string, error) {
	bundle, err := c.rest.Search(ctx, "AllergyIntolerance", url.Values{"patient": {id}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Epic, "patient_allergies", err)
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
		return nil, unified.NewFetchError(unified.Epic, "patient_medications", err)
	}
	var names []string
	for _, m := range fhir.Resources[fhir.MedicationRequest](bundle, "MedicationRequest") {
		if name := m.MedicationDisplay(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *Client) PatientEncounters(ctx context.Context, id string) ([]unified.EncounterRecord, error) {
	bundle, err := c.rest.Search(ctx, "Encounter", url.Values{
		"patient": {id},
		"_sort":   {"-date"},
		"_count":  {"10"},
	})
	if err != nil {
		return nil, unified.NewFetchError(unified.Epic, "patient_encounters", err)
	}
	return mapEncounters(bundle), nil
}

func (c *Client) mapPatient(p *fhir.Patient) *unified.PatientRecord {
	return &unified.PatientRecord{
		ID:          p.ID,
		MRN:         extractMRN(p),
		Name:        p.DisplayName(),
		DateOfBirth: p.BirthDate,
		Gender:      p.Gender,
		EHRSystem:   unified.Epic,
	}
}

// extractMRN finds the identifier flagged with type code MR.
func extractMRN(p *fhir.Patient) string {
	for _, ident := range p.Identifier {
		if ident.Type.HasCoding(identifierTypeSystem, "MR") {
			return ident.Value
		}
	}
	return ""
}

func (c *Client) mapVital(o *fhir.Observation, vc unified.VitalCode) (unified.VitalSign, bool) {
	v := unified.VitalSign{Code: vc.Code, Name: vc.Name}
	if t, ok := o.EffectiveTime(); ok {
		v.Timestamp = &t
	}

	q := o.ValueQuantity
	if q == nil {
		// BP panels answer single-code queries with component values.
		for i := range o.Component {
			if o.Component[i].Code.HasCoding("http://loinc.org", vc.Code) {
				q = o.Component[i].ValueQuantity
				break
			}
		}
	}
	switch {
	case q != nil:
		v.Value = q.Value.String()
		v.Unit = q.Unit
	case o.ValueString != "":
		v.Value = o.ValueString
	default:
		c.logger.Debug().Str("observation", o.ID).Str("code", vc.Code).Msg("observation has no usable value")
		return v, false
	}
	return v, true
}

func mapEncounters(bundle *fhir.Bundle) []unified.EncounterRecord {
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
	return encs
}
