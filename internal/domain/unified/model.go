// Package unified is the vendor-neutral EHR layer: the domain model the
// gateway exposes, the per-vendor client contract, and the facade that
// dispatches calls and assembles patient summaries.
package unified

import (
	"strings"
	"time"
)

// VendorSystem identifies one external EHR platform. The set is closed;
// tags without a registered client are placeholders that resolve to
// absent results rather than errors.
type VendorSystem string

const (
	Epic         VendorSystem = "epic"
	Cerner       VendorSystem = "cerner"
	Veradigm     VendorSystem = "veradigm"
	AthenaHealth VendorSystem = "athenahealth"
	Meditech     VendorSystem = "meditech"
	GenericFHIR  VendorSystem = "generic-fhir"
)

// KnownSystems lists every tag the gateway recognizes, wired or not.
var KnownSystems = []VendorSystem{Epic, Cerner, Veradigm, AthenaHealth, Meditech, GenericFHIR}

// ParseVendorSystem resolves a tag string case-insensitively. Underscores
// are accepted for generic_fhir since older mobile builds send that form.
func ParseVendorSystem(s string) (VendorSystem, bool) {
	tag := VendorSystem(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	for _, known := range KnownSystems {
		if tag == known {
			return known, true
		}
	}
	return "", false
}

// ResolveDefaultVendor maps the configured default tag to a VendorSystem.
// Unrecognized or empty tags resolve to Epic with ok=false so startup can
// warn loudly while the gateway still comes up. Deployed clients depend
// on the runtime fallback.
func ResolveDefaultVendor(tag string) (VendorSystem, bool) {
	if v, ok := ParseVendorSystem(tag); ok {
		return v, true
	}
	return Epic, false
}

func (v VendorSystem) String() string {
	return string(v)
}

// DisplayName returns the marketing name used in the systems catalog.
func (v VendorSystem) DisplayName() string {
	switch v {
	case Epic:
		return "Epic"
	case Cerner:
		return "Oracle Health (Cerner)"
	case Veradigm:
		return "Veradigm"
	case AthenaHealth:
		return "athenahealth"
	case Meditech:
		return "MEDITECH"
	case GenericFHIR:
		return "Generic FHIR R4"
	default:
		return string(v)
	}
}

// PatientRecord is the vendor-neutral patient identity projection. It is
// owned per-request and never persisted by this layer.
type PatientRecord struct {
	ID          string       `json:"id"`
	MRN         string       `json:"mrn,omitempty"`
	Name        string       `json:"name"`
	DateOfBirth string       `json:"dateOfBirth,omitempty"`
	Gender      string       `json:"gender,omitempty"`
	EHRSystem   VendorSystem `json:"ehrSystem"`
}

// VitalSign is one normalized observation reading.
type VitalSign struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Value     string     `json:"value"`
	Unit      string     `json:"unit,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// EncounterRecord is a normalized encounter row.
type EncounterRecord struct {
	ID     string `json:"id"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
	Start  string `json:"start,omitempty"`
}

// PatientSummary aggregates one patient with the list fields the AR
// display shows. Built fresh per request.
type PatientSummary struct {
	Patient     PatientRecord `json:"patient"`
	Vitals      []VitalSign   `json:"vitals"`
	Conditions  []string      `json:"conditions"`
	Allergies   []string      `json:"allergies"`
	Medications []string      `json:"medications"`
}

// SystemInfo is a row in the informational /systems catalog. Wired means
// a client is registered for the tag, not that the endpoint is reachable.
type SystemInfo struct {
	System   VendorSystem `json:"system"`
	Name     string       `json:"name"`
	Endpoint string       `json:"endpoint,omitempty"`
	Wired    bool         `json:"wired"`
}

// VitalCode pairs a LOINC code with its display name.
type VitalCode struct {
	Code string
	Name string
}

// VitalCodes is the fixed set of vital-sign observations every vendor
// client queries, in the order results are returned. One most-recent
// reading per code; codes a vendor has no data for are skipped.
var VitalCodes = []VitalCode{
	{"8867-4", "Heart Rate"},
	{"8480-6", "Systolic Blood Pressure"},
	{"8462-4", "Diastolic Blood Pressure"},
	{"8310-5", "Body Temperature"},
	{"9279-1", "Respiratory Rate"},
	{"59408-5", "Oxygen Saturation"},
	{"29463-7", "Body Weight"},
}

// VitalName returns the display name for a LOINC code in VitalCodes.
func VitalName(code string) string {
	for _, vc := range VitalCodes {
		if vc.Code == code {
			return vc.Name
		}
	}
	return code
}
