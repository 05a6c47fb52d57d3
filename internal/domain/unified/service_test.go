package unified

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockClient records every call so tests can assert dispatch isolation.
type mockClient struct {
	system VendorSystem
	calls  []string

	patient    *PatientRecord
	patientErr error

	searchResults []PatientRecord
	searchErr     error

	vitals    []VitalSign
	vitalsErr error

	conditions    []string
	conditionsErr error

	allergies    []string
	allergiesErr error

	medications    []string
	medicationsErr error

	encounters    []EncounterRecord
	encountersErr error
}

func (m *mockClient) System() VendorSystem { return m.system }

func (m *mockClient) PatientByID(_ context.Context, id string) (*PatientRecord, error) {
	m.calls = append(m.calls, "PatientByID")
	return m.patient, m.patientErr
}

func (m *mockClient) PatientByMRN(_ context.Context, mrn string) (*PatientRecord, error) {
	m.calls = append(m.calls, "PatientByMRN")
	return m.patient, m.patientErr
}

func (m *mockClient) SearchPatientsByName(_ context.Context, name string) ([]PatientRecord, error) {
	m.calls = append(m.calls, "SearchPatientsByName")
	return m.searchResults, m.searchErr
}

func (m *mockClient) PatientVitals(_ context.Context, id string) ([]VitalSign, error) {
	m.calls = append(m.calls, "PatientVitals")
	return m.vitals, m.vitalsErr
}

func (m *mockClient) PatientConditions(_ context.Context, id string) ([]string, error) {
	m.calls = append(m.calls, "PatientConditions")
	return m.conditions, m.conditionsErr
}

func (m *mockClient) PatientAllergies(_ context.Context, id string) ([]string, error) {
	m.calls = append(m.calls, "PatientAllergies")
	return m.allergies, m.allergiesErr
}

func (m *mockClient) PatientMedications(_ context.Context, id string) ([]string, error) {
	m.calls = append(m.calls, "PatientMedications")
	return m.medications, m.medicationsErr
}

func (m *mockClient) PatientEncounters(_ context.Context, id string) ([]EncounterRecord, error) {
	m.calls = append(m.calls, "PatientEncounters")
	return m.encounters, m.encountersErr
}

func newTestService() (*Service, *mockClient, *mockClient, *mockClient) {
	epicMock := &mockClient{system: Epic}
	cernerMock := &mockClient{system: Cerner}
	veradigmMock := &mockClient{system: Veradigm}
	svc := NewService(map[VendorSystem]Client{
		Epic:     epicMock,
		Cerner:   cernerMock,
		Veradigm: veradigmMock,
	}, Epic, zerolog.Nop())
	return svc, epicMock, cernerMock, veradigmMock
}

func TestService_Patient_DispatchIsolation(t *testing.T) {
	svc, epicMock, cernerMock, veradigmMock := newTestService()
	cernerMock.patient = &PatientRecord{ID: "p1", EHRSystem: Cerner}

	p := svc.Patient(context.Background(), "p1", Cerner)
	if p == nil || p.EHRSystem != Cerner {
		t.Fatalf("expected cerner patient, got %+v", p)
	}
	if len(cernerMock.calls) != 1 {
		t.Errorf("expected exactly one cerner call, got %v", cernerMock.calls)
	}
	if len(epicMock.calls) != 0 {
		t.Errorf("epic client should not be touched, got %v", epicMock.calls)
	}
	if len(veradigmMock.calls) != 0 {
		t.Errorf("veradigm client should not be touched, got %v", veradigmMock.calls)
	}
}

func TestService_Patient_DefaultVendor(t *testing.T) {
	svc, epicMock, cernerMock, _ := newTestService()
	epicMock.patient = &PatientRecord{ID: "p1", EHRSystem: Epic}

	p := svc.Patient(context.Background(), "p1", "")
	if p == nil || p.EHRSystem != Epic {
		t.Fatalf("expected default (epic) patient, got %+v", p)
	}
	if len(cernerMock.calls) != 0 {
		t.Errorf("cerner client should not be touched, got %v", cernerMock.calls)
	}
}

func TestService_Patient_UnwiredVendorAbsent(t *testing.T) {
	svc, epicMock, cernerMock, veradigmMock := newTestService()

	for _, vendor := range []VendorSystem{GenericFHIR, AthenaHealth, "no-such-vendor"} {
		if p := svc.Patient(context.Background(), "p1", vendor); p != nil {
			t.Errorf("vendor %q: expected absent, got %+v", vendor, p)
		}
	}
	for _, m := range []*mockClient{epicMock, cernerMock, veradigmMock} {
		if len(m.calls) != 0 {
			t.Errorf("%s client invoked for unwired vendor: %v", m.system, m.calls)
		}
	}
}

func TestService_Patient_UpstreamFailureAbsent(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	epicMock.patientErr = &FetchError{System: Epic, Kind: FetchUnreachable, Op: "patient_by_id", Err: errors.New("connection refused")}

	if p := svc.Patient(context.Background(), "p1", Epic); p != nil {
		t.Fatalf("expected absent on upstream failure, got %+v", p)
	}
}

func TestService_SearchPatients_VendorOrder(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	epicMock.searchResults = []PatientRecord{
		{ID: "1", Name: "SMITH, JOHN", EHRSystem: Epic},
		{ID: "2", Name: "SMITH, JANE", EHRSystem: Epic},
	}

	results := svc.SearchPatients(context.Background(), "SMITH", Epic)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "1" || results[1].ID != "2" {
		t.Errorf("vendor order not preserved: %+v", results)
	}
}

func TestService_SearchPatients_FailureEmpty(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	epicMock.searchErr = &FetchError{System: Epic, Kind: FetchUnreachable, Op: "search_patients", Err: errors.New("timeout")}

	results := svc.SearchPatients(context.Background(), "SMITH", Epic)
	if results == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestService_Summary_BaseFetchFailureAbsent(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	epicMock.patientErr = &FetchError{System: Epic, Kind: FetchNotFound, Op: "patient_by_id", Err: errors.New("404")}
	epicMock.vitals = []VitalSign{{Code: "8867-4", Name: "Heart Rate", Value: "72"}}

	if s := svc.Summary(context.Background(), "p1", Epic); s != nil {
		t.Fatalf("expected absent summary when base fetch fails, got %+v", s)
	}
	// Subordinate fetches must not run after a base failure.
	for _, call := range epicMock.calls {
		if call != "PatientByID" {
			t.Errorf("unexpected call after base failure: %s", call)
		}
	}
}

func TestService_Summary_SubordinateFailureDegrades(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	epicMock.patient = &PatientRecord{ID: "p1", Name: "DOE, JANE", EHRSystem: Epic}
	epicMock.vitals = []VitalSign{{Code: "8867-4", Name: "Heart Rate", Value: "72", Unit: "bpm"}}
	epicMock.conditionsErr = &FetchError{System: Epic, Kind: FetchUnreachable, Op: "patient_conditions", Err: errors.New("boom")}
	epicMock.allergies = []string{"Penicillin"}
	epicMock.medications = []string{"Lisinopril 10mg"}

	s := svc.Summary(context.Background(), "p1", Epic)
	if s == nil {
		t.Fatal("summary should survive a subordinate failure")
	}
	if s.Conditions == nil || len(s.Conditions) != 0 {
		t.Errorf("failed field should be empty list, got %#v", s.Conditions)
	}
	if len(s.Vitals) != 1 || len(s.Allergies) != 1 || len(s.Medications) != 1 {
		t.Errorf("healthy fields should be populated: %+v", s)
	}
}

func TestService_Summary_AllFieldsPopulated(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	now := time.Now()
	epicMock.patient = &PatientRecord{ID: "p1", Name: "DOE, JANE", EHRSystem: Epic}
	epicMock.vitals = []VitalSign{{Code: "8480-6", Name: "Systolic Blood Pressure", Value: "120", Unit: "mmHg", Timestamp: &now}}
	epicMock.conditions = []string{"Hypertension"}
	epicMock.allergies = []string{"Penicillin", "Sulfa"}
	epicMock.medications = []string{"Lisinopril 10mg"}

	s := svc.Summary(context.Background(), "p1", Epic)
	if s == nil {
		t.Fatal("expected summary")
	}
	if s.Patient.Name != "DOE, JANE" {
		t.Errorf("unexpected patient: %+v", s.Patient)
	}
	if len(s.Vitals) != 1 || s.Vitals[0].Value != "120" {
		t.Errorf("unexpected vitals: %+v", s.Vitals)
	}
	if len(s.Allergies) != 2 {
		t.Errorf("unexpected allergies: %+v", s.Allergies)
	}
}

func TestService_Summary_NilRecordWithoutError(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	// patient and patientErr both stay nil: a client out of contract.

	if s := svc.Summary(context.Background(), "p1", Epic); s != nil {
		t.Fatalf("expected absent summary, got %+v", s)
	}
	// Subordinate fetches must not run against a missing base record.
	for _, call := range epicMock.calls {
		if call != "PatientByID" {
			t.Errorf("unexpected call: %s", call)
		}
	}
}

func TestService_SummaryByMRN(t *testing.T) {
	svc, _, cernerMock, _ := newTestService()
	cernerMock.patient = &PatientRecord{ID: "p9", MRN: "MRN-42", EHRSystem: Cerner}

	s := svc.SummaryByMRN(context.Background(), "MRN-42", Cerner)
	if s == nil || s.Patient.MRN != "MRN-42" {
		t.Fatalf("expected summary for MRN-42, got %+v", s)
	}
	if cernerMock.calls[0] != "PatientByMRN" {
		t.Errorf("base lookup should use MRN search, got %v", cernerMock.calls)
	}
}

func TestService_PatientVitals_FailureEmpty(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	epicMock.vitalsErr = &FetchError{System: Epic, Kind: FetchUnauthorized, Op: "patient_vitals", Err: errors.New("401")}

	vitals := svc.PatientVitals(context.Background(), "p1", Epic)
	if vitals == nil || len(vitals) != 0 {
		t.Fatalf("expected empty vitals, got %#v", vitals)
	}
}

func TestService_PatientEncounters(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	epicMock.encounters = []EncounterRecord{{ID: "e1", Type: "Office Visit", Status: "finished"}}

	encs := svc.PatientEncounters(context.Background(), "p1", Epic)
	if len(encs) != 1 || encs[0].Type != "Office Visit" {
		t.Fatalf("unexpected encounters: %+v", encs)
	}
}

type captureMetrics struct {
	counts map[string]int
}

func (c *captureMetrics) VendorCall(vendor, op, outcome string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[vendor+"/"+op+"/"+outcome]++
}

func TestService_MetricsOutcomes(t *testing.T) {
	svc, epicMock, _, _ := newTestService()
	metrics := &captureMetrics{}
	svc.SetMetrics(metrics)

	epicMock.patient = &PatientRecord{ID: "p1", EHRSystem: Epic}
	svc.Patient(context.Background(), "p1", Epic)

	epicMock.patientErr = &FetchError{System: Epic, Kind: FetchUnreachable, Op: "patient_by_id", Err: errors.New("down")}
	svc.Patient(context.Background(), "p1", Epic)

	if metrics.counts["epic/patient_by_id/ok"] != 1 {
		t.Errorf("expected one ok outcome, got %v", metrics.counts)
	}
	if metrics.counts["epic/patient_by_id/unreachable"] != 1 {
		t.Errorf("expected one unreachable outcome, got %v", metrics.counts)
	}
}
