package unified

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// CallMetrics counts upstream vendor calls. Implemented by the telemetry
// provider; calls are skipped when none is set.
type CallMetrics interface {
	VendorCall(vendor, op, outcome string)
}

// Service is the unified EHR facade. It owns the vendor client registry,
// dispatches each call to exactly one client, and applies the degrade
// policy: any upstream failure becomes an absent record or an empty list,
// logged here and never surfaced to callers. Every method is stateless
// and safe for concurrent use; the registry is fixed at construction.
type Service struct {
	clients       map[VendorSystem]Client
	defaultVendor VendorSystem
	logger        zerolog.Logger
	metrics       CallMetrics
}

// NewService builds the facade over an explicit client registry. Clients
// are constructed by the caller and injected; the facade never creates
// or caches vendor connections itself.
func NewService(clients map[VendorSystem]Client, defaultVendor VendorSystem, logger zerolog.Logger) *Service {
	reg := make(map[VendorSystem]Client, len(clients))
	for v, c := range clients {
		reg[v] = c
	}
	return &Service{clients: reg, defaultVendor: defaultVendor, logger: logger}
}

// SetMetrics attaches a call counter. Call before serving; the registry
// and hooks are not synchronized for later swaps.
func (s *Service) SetMetrics(m CallMetrics) {
	s.metrics = m
}

// record counts one upstream call outcome.
func (s *Service) record(op string, vendor VendorSystem, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	var fe *FetchError
	if errors.As(err, &fe) {
		outcome = string(fe.Kind)
	} else if err != nil {
		outcome = "error"
	}
	s.metrics.VendorCall(vendor.String(), op, outcome)
}

// DefaultVendor returns the vendor used when a call passes no explicit tag.
func (s *Service) DefaultVendor() VendorSystem {
	return s.defaultVendor
}

// Wired reports whether a client is registered for the tag.
func (s *Service) Wired(v VendorSystem) bool {
	_, ok := s.clients[v]
	return ok
}

// resolve picks the client for an explicit tag, or the default when the
// tag is zero. A miss is not an error; the caller yields absent/empty.
func (s *Service) resolve(v VendorSystem) (Client, bool) {
	if v == "" {
		v = s.defaultVendor
	}
	c, ok := s.clients[v]
	if !ok {
		s.logger.Debug().Str("vendor", v.String()).Msg("no client wired for vendor")
	}
	return c, ok
}

// degrade logs an upstream failure and returns. This is the one place
// vendor errors are converted to absence.
func (s *Service) degrade(op string, vendor VendorSystem, err error) {
	evt := s.logger.Warn().Str("op", op).Str("vendor", vendor.String())
	var fe *FetchError
	if errors.As(err, &fe) {
		evt = evt.Str("kind", string(fe.Kind))
	}
	evt.Err(err).Msg("upstream fetch degraded to empty result")
}

// Patient fetches the vendor-neutral patient record. Absent on any
// upstream failure or unwired vendor.
func (s *Service) Patient(ctx context.Context, id string, vendor VendorSystem) *PatientRecord {
	c, ok := s.resolve(vendor)
	if !ok {
		return nil
	}
	p, err := c.PatientByID(ctx, id)
	s.record("patient_by_id", c.System(), err)
	if err != nil {
		s.degrade("patient", c.System(), err)
		return nil
	}
	return p
}

// PatientByMRN looks a patient up by medical record number.
func (s *Service) PatientByMRN(ctx context.Context, mrn string, vendor VendorSystem) *PatientRecord {
	c, ok := s.resolve(vendor)
	if !ok {
		return nil
	}
	p, err := c.PatientByMRN(ctx, mrn)
	s.record("patient_by_mrn", c.System(), err)
	if err != nil {
		s.degrade("patient_by_mrn", c.System(), err)
		return nil
	}
	return p
}

// SearchPatients returns matches in vendor order, empty on failure.
func (s *Service) SearchPatients(ctx context.Context, name string, vendor VendorSystem) []PatientRecord {
	c, ok := s.resolve(vendor)
	if !ok {
		return []PatientRecord{}
	}
	records, err := c.SearchPatientsByName(ctx, name)
	s.record("search_patients", c.System(), err)
	if err != nil {
		s.degrade("search_patients", c.System(), err)
		return []PatientRecord{}
	}
	if records == nil {
		records = []PatientRecord{}
	}
	return records
}

// PatientVitals returns the most-recent reading per fixed LOINC code.
func (s *Service) PatientVitals(ctx context.Context, id string, vendor VendorSystem) []VitalSign {
	c, ok := s.resolve(vendor)
	if !ok {
		return []VitalSign{}
	}
	vitals, err := c.PatientVitals(ctx, id)
	s.record("patient_vitals", c.System(), err)
	if err != nil {
		s.degrade("patient_vitals", c.System(), err)
		return []VitalSign{}
	}
	if vitals == nil {
		vitals = []VitalSign{}
	}
	return vitals
}

// PatientEncounters returns recent encounters, empty on failure.
func (s *Service) PatientEncounters(ctx context.Context, id string, vendor VendorSystem) []EncounterRecord {
	c, ok := s.resolve(vendor)
	if !ok {
		return []EncounterRecord{}
	}
	encs, err := c.PatientEncounters(ctx, id)
	s.record("patient_encounters", c.System(), err)
	if err != nil {
		s.degrade("patient_encounters", c.System(), err)
		return []EncounterRecord{}
	}
	if encs == nil {
		encs = []EncounterRecord{}
	}
	return encs
}

// Summary assembles the full patient summary: one base patient fetch and
// four sequential list fetches. If the base fetch fails the summary is
// absent. If a list fetch fails only that field is empty; the summary is
// still returned.
func (s *Service) Summary(ctx context.Context, id string, vendor VendorSystem) *PatientSummary {
	c, ok := s.resolve(vendor)
	if !ok {
		return nil
	}
	patient, err := c.PatientByID(ctx, id)
	s.record("patient_by_id", c.System(), err)
	if err != nil {
		s.degrade("summary", c.System(), err)
		return nil
	}
	return s.assemble(ctx, c, patient)
}

// SummaryByMRN is Summary with an MRN base lookup.
func (s *Service) SummaryByMRN(ctx context.Context, mrn string, vendor VendorSystem) *PatientSummary {
	c, ok := s.resolve(vendor)
	if !ok {
		return nil
	}
	patient, err := c.PatientByMRN(ctx, mrn)
	s.record("patient_by_mrn", c.System(), err)
	if err != nil {
		s.degrade("summary_by_mrn", c.System(), err)
		return nil
	}
	return s.assemble(ctx, c, patient)
}

func (s *Service) assemble(ctx context.Context, c Client, patient *PatientRecord) *PatientSummary {
	// A client returning no record without an error is out of contract;
	// treat it as absent rather than crashing the aggregation.
	if patient == nil {
		s.logger.Warn().Str("vendor", c.System().String()).Msg("client returned neither record nor error")
		return nil
	}
	summary := &PatientSummary{
		Patient:     *patient,
		Vitals:      []VitalSign{},
		Conditions:  []string{},
		Allergies:   []string{},
		Medications: []string{},
	}

	vitals, err := c.PatientVitals(ctx, patient.ID)
	s.record("patient_vitals", c.System(), err)
	if err != nil {
		s.degrade("summary.vitals", c.System(), err)
	} else if vitals != nil {
		summary.Vitals = vitals
	}

	summary.Conditions = s.listField(ctx, "summary.conditions", "patient_conditions", c, patient.ID, c.PatientConditions)
	summary.Allergies = s.listField(ctx, "summary.allergies", "patient_allergies", c, patient.ID, c.PatientAllergies)
	summary.Medications = s.listField(ctx, "summary.medications", "patient_medications", c, patient.ID, c.PatientMedications)

	return summary
}

func (s *Service) listField(ctx context.Context, op, metricOp string, c Client, id string, fetch func(context.Context, string) ([]string, error)) []string {
	values, err := fetch(ctx, id)
	s.record(metricOp, c.System(), err)
	if err != nil {
		s.degrade(op, c.System(), err)
		return []string{}
	}
	if values == nil {
		return []string{}
	}
	return values
}
