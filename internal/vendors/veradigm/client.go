// Package veradigm adapts Veradigm (formerly Allscripts) FHIR R4
// endpoints to the unified client contract. Veradigm's server ignores
// _sort on Observation searches, so the adapter over-fetches and picks
// the most recent reading per code client-side. MRNs arrive as bare
// identifier values without a typed coding.
package veradigm

import (
	"context"
	"errors"
	"net/url"

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
	return &Client{rest: rest, logger: logger.With().Str("vendor", "veradigm").Logger()}
}

func (c *Client) System() unified.VendorSystem {
	return unified.Veradigm
}

func (c *Client) PatientByID(ctx context.Context, id string) (*unified.PatientRecord, error) {
	var p fhir.Patient
	if err := c.rest.Read(ctx, "Patient", id, &p); err != nil {
		return nil, unified.NewFetchError(unified.Veradigm, "patient_by_id", err)
	}
	return c.mapPatient(&p), nil
}

func (c *Client) PatientByMRN(ctx context.Context, mrn string) (*unified.PatientRecord, error) {
	bundle, err := c.rest.Search(ctx, "Patient", url.Values{"identifier": {mrn}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Veradigm, "patient_by_mrn", err)
	}
	patients := fhir.Resources[fhir.Patient](bundle, "Patient")
	if len(patients) == 0 {
		return nil, &unified.FetchError{System: unified.Veradigm, Kind: unified.FetchNotFound, Op: "patient_by_mrn", Err: errNoMatch}
	}
	return c.mapPatient(&patients[0]), nil
}

func (c *Client) SearchPatientsByName(ctx context.Context, name string) ([]unified.PatientRecord, error) {
	bundle, err := c.rest.Search(ctx, "Patient", url.Values{"name": {name}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Veradigm, "search_patients", err)
	}
	var records []unified.PatientRecord
	for _, p := range fhir.Resources[fhir.Patient](bundle, "Patient") {
		records = append(records, *c.mapPatient(&p))
	}
	return records, nil
}

// PatientVitals over-fetches per code and selects the newest reading
// locally, since the server does not honor _sort.
func (c *Client) PatientVitals(ctx context.Context, id string) ([]unified.VitalSign, error) {
	var vitals []unified.VitalSign
	for _, vc := range unified.VitalCodes {
		bundle, err := c.rest.Search(ctx, "Observation", url.Values{
			"patient":  {id},
			"code":     {vc.Code},
			"category": {"vital-signs"},
			"_count":   {"20"},
		})
		if err != nil {
			return nil, unified.NewFetchError(unified.Veradigm, "patient_vitals", err)
		}
		obs := fhir.Resources[fhir.Observation](bundle, "Observation")
		latest := newestObservation(obs)
		if latest == nil {
			continue
		}
		if v, ok := mapVital(latest, vc); ok {
			vitals = append(vitals, v)
		}
	}
	return vitals, nil
}

// newestObservation picks the entry with the latest effective time.
// Entries without a parseable timestamp lose to any dated entry but an
// undated sole entry still wins.
func newestObservation(obs []fhir.Observation) *fhir.Observation {
	if len(obs) == 0 {
		return nil
	}
	best := &obs[0]
	bestTime, bestDated := best.EffectiveTime()
	for i := 1; i < len(obs); i++ {
		t, dated := obs[i].EffectiveTime()
		if dated && (!bestDated || t.After(bestTime)) {
			best = &obs[i]
			bestTime, bestDated = t, true
		}
	}
	return best
}

func (c *Client) PatientConditions(ctx context.Context, id string) ([]string, error) {
	bundle, err := c.rest.Search(ctx, "Condition", url.Values{
		"patient":         {id},
		"clinical-status": {"active"},
	})
	if err != nil {
		return nil, unified.NewFetchError(unified.Veradigm, "patient_conditions", err)
	}
	var names []string
	for _, cond := range fhir.Resources[fhir.Condition](bundle, "Condition") {
		if name := cond.Code.DisplayText(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// PatientAllergies prefers coding displays; Veradigm fills text with
// internal codes on some records.
func (c *Client) PatientAllergies(ctx context.Context, id string) ([]string, error) {
	bundle, err := c.rest.Search(ctx, "AllergyIntolerance", url.Values{"patient": {id}})
	if err != nil {
		return nil, unified.NewFetchError(unified.Veradigm, "patient_allergies", err)
	}
	var names []string
	for _, a := range fhir.Resources[fhir.AllergyIntolerance](bundle, "AllergyIntolerance") {
		if name := a.Code.CodingDisplay(); name != "" {
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
		return nil, unified.NewFetchError(unified.Veradigm, "patient_medications", err)
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
		"_count":  {"10"},
	})
	if err != nil {
		return nil, unified.NewFetchError(unified.Veradigm, "patient_encounters", err)
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
	mrn := ""
	if len(p.Identifier) > 0 {
		mrn = p.Identifier[0].Value
	}
	return &unified.PatientRecord{
		ID:          p.ID,
		MRN:         mrn,
		Name:        p.DisplayName(),
		DateOfBirth: p.BirthDate,
		Gender:      p.Gender,
		EHRSystem:   unified.Veradigm,
	}
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
