package fhir

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCodeableConcept_DisplayText(t *testing.T) {
	tests := []struct {
		name string
		c    *CodeableConcept
		want string
	}{
		{"nil", nil, ""},
		{"text wins", &CodeableConcept{Text: "Hypertension", Coding: []Coding{{Display: "HTN"}}}, "Hypertension"},
		{"first display", &CodeableConcept{Coding: []Coding{{Code: "38341003"}, {Display: "Hypertension"}}}, "Hypertension"},
		{"code fallback", &CodeableConcept{Coding: []Coding{{Code: "38341003"}}}, "38341003"},
		{"empty", &CodeableConcept{}, ""},
	}
	for _, tt := range tests {
		if got := tt.c.DisplayText(); got != tt.want {
			t.Errorf("%s: DisplayText() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCodeableConcept_CodingDisplay(t *testing.T) {
	c := &CodeableConcept{Text: "internal-code-991", Coding: []Coding{{Display: "Lisinopril 10mg"}}}
	if got := c.CodingDisplay(); got != "Lisinopril 10mg" {
		t.Errorf("CodingDisplay() = %q", got)
	}
	c = &CodeableConcept{Text: "Penicillin"}
	if got := c.CodingDisplay(); got != "Penicillin" {
		t.Errorf("CodingDisplay() text fallback = %q", got)
	}
}

func TestCodeableConcept_HasCoding(t *testing.T) {
	c := &CodeableConcept{Coding: []Coding{{System: "http://loinc.org", Code: "8480-6"}}}
	if !c.HasCoding("http://loinc.org", "8480-6") {
		t.Error("expected match on system+code")
	}
	if !c.HasCoding("", "8480-6") {
		t.Error("empty system should match any system")
	}
	if c.HasCoding("http://loinc.org", "8462-4") {
		t.Error("unexpected match on wrong code")
	}
	var nilConcept *CodeableConcept
	if nilConcept.HasCoding("", "x") {
		t.Error("nil concept should never match")
	}
}

func TestHumanName_Display(t *testing.T) {
	tests := []struct {
		name HumanName
		want string
	}{
		{HumanName{Text: "Nancy Smarts"}, "Nancy Smarts"},
		{HumanName{Family: "SMARTS SR.", Given: []string{"NANCYS", "II"}}, "SMARTS SR., NANCYS II"},
		{HumanName{Family: "SMARTS"}, "SMARTS"},
		{HumanName{Given: []string{"NANCYS"}}, "NANCYS"},
	}
	for _, tt := range tests {
		if got := tt.name.Display(); got != tt.want {
			t.Errorf("Display() = %q, want %q", got, tt.want)
		}
	}
}

func TestPatient_DisplayName_PrefersOfficial(t *testing.T) {
	p := &Patient{Name: []HumanName{
		{Use: "nickname", Text: "Nan"},
		{Use: "official", Family: "SMARTS SR.", Given: []string{"NANCYS", "II"}},
	}}
	if got := p.DisplayName(); got != "SMARTS SR., NANCYS II" {
		t.Errorf("DisplayName() = %q", got)
	}

	p = &Patient{Name: []HumanName{{Text: "Nan"}}}
	if got := p.DisplayName(); got != "Nan" {
		t.Errorf("DisplayName() first-entry fallback = %q", got)
	}
	if got := (&Patient{}).DisplayName(); got != "" {
		t.Errorf("DisplayName() on unnamed patient = %q", got)
	}
}

func TestQuantity_PreservesVendorFormatting(t *testing.T) {
	var q Quantity
	if err := json.Unmarshal([]byte(`{"value":120,"unit":"mmHg"}`), &q); err != nil {
		t.Fatal(err)
	}
	if q.Value.String() != "120" {
		t.Errorf("integer value rendered %q", q.Value.String())
	}

	if err := json.Unmarshal([]byte(`{"value":98.6,"unit":"degF"}`), &q); err != nil {
		t.Fatal(err)
	}
	if q.Value.String() != "98.6" {
		t.Errorf("decimal value rendered %q", q.Value.String())
	}
}

func TestObservation_EffectiveTime(t *testing.T) {
	o := &Observation{EffectiveDateTime: "2024-03-01T10:30:00Z", Issued: "2024-03-02T08:00:00Z"}
	got, ok := o.EffectiveTime()
	if !ok || !got.Equal(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("EffectiveTime() = %v, %v", got, ok)
	}

	// issued fallback when effectiveDateTime is absent
	o = &Observation{Issued: "2024-03-02T08:00:00Z"}
	got, ok = o.EffectiveTime()
	if !ok || !got.Equal(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("EffectiveTime() issued fallback = %v, %v", got, ok)
	}

	o = &Observation{}
	if _, ok := o.EffectiveTime(); ok {
		t.Error("undated observation should report no time")
	}
}

func TestMedicationRequest_MedicationDisplay(t *testing.T) {
	m := &MedicationRequest{MedicationCodeableConcept: &CodeableConcept{Text: "Lisinopril 10mg oral tablet"}}
	if got := m.MedicationDisplay(); got != "Lisinopril 10mg oral tablet" {
		t.Errorf("MedicationDisplay() = %q", got)
	}

	m = &MedicationRequest{MedicationReference: &Reference{Display: "Metformin 500mg"}}
	if got := m.MedicationDisplay(); got != "Metformin 500mg" {
		t.Errorf("MedicationDisplay() reference fallback = %q", got)
	}

	if got := (&MedicationRequest{}).MedicationDisplay(); got != "" {
		t.Errorf("MedicationDisplay() on empty request = %q", got)
	}
}

func TestResources_SkipsMismatchedAndBrokenEntries(t *testing.T) {
	raw := `{
		"resourceType": "Bundle",
		"type": "searchset",
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1"}},
			{"resource": {"resourceType": "OperationOutcome", "id": "oo1"}},
			{"resource": {"resourceType": "Patient", "id": "p2"}},
			{}
		]
	}`
	var b Bundle
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatal(err)
	}

	patients := Resources[Patient](&b, "Patient")
	if len(patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(patients))
	}
	if patients[0].ID != "p1" || patients[1].ID != "p2" {
		t.Errorf("unexpected patients: %+v", patients)
	}
}

func TestParseTime(t *testing.T) {
	for _, good := range []string{"2024-03-01T10:30:00Z", "2024-03-01T10:30:00-05:00", "2024-03-01T10:30:00", "2024-03-01"} {
		if _, err := ParseTime(good); err != nil {
			t.Errorf("ParseTime(%q) failed: %v", good, err)
		}
	}
	if _, err := ParseTime("03/01/2024"); err == nil {
		t.Error("ParseTime should reject non-FHIR layouts")
	}
}
