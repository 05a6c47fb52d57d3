// Package fhir holds the subset of the FHIR R4 wire model the gateway
// consumes from vendor endpoints, plus the vendor-scoped REST client used
// to fetch it. Only the elements the normalization layer actually reads
// are modeled; everything else in a vendor payload is ignored on decode.
package fhir

import (
	"encoding/json"
	"strings"
	"time"
)

type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Profile     []string `json:"profile,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// DisplayText returns a human-readable label for the concept: the text
// element when present, otherwise the first coding display, otherwise the
// first coding code.
func (c *CodeableConcept) DisplayText() string {
	if c == nil {
		return ""
	}
	if c.Text != "" {
		return c.Text
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	if len(c.Coding) > 0 {
		return c.Coding[0].Code
	}
	return ""
}

// CodingDisplay returns the first coding display, falling back to the text
// element. Some vendors populate coding displays and leave text empty.
func (c *CodeableConcept) CodingDisplay() string {
	if c == nil {
		return ""
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	return c.Text
}

// HasCoding reports whether the concept carries the given system+code pair.
func (c *CodeableConcept) HasCoding(system, code string) bool {
	if c == nil {
		return false
	}
	for _, coding := range c.Coding {
		if coding.Code == code && (system == "" || coding.System == system) {
			return true
		}
	}
	return false
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

// Display renders the name as "FAMILY, GIVEN [GIVEN...]". The text element
// wins when a vendor supplies it.
func (n HumanName) Display() string {
	if n.Text != "" {
		return n.Text
	}
	if n.Family == "" {
		return strings.Join(n.Given, " ")
	}
	if len(n.Given) == 0 {
		return n.Family
	}
	return n.Family + ", " + strings.Join(n.Given, " ")
}

type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Quantity keeps the numeric value as json.Number so vendor formatting
// (120 vs 120.0) survives into display strings unchanged.
type Quantity struct {
	Value  json.Number `json:"value,omitempty"`
	Unit   string      `json:"unit,omitempty"`
	System string      `json:"system,omitempty"`
	Code   string      `json:"code,omitempty"`
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Meta         *Meta        `json:"meta,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Active       *bool        `json:"active,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"`
	BirthDate    string       `json:"birthDate,omitempty"`
}

// DisplayName picks the official name when one is flagged, otherwise the
// first name entry.
func (p *Patient) DisplayName() string {
	for _, n := range p.Name {
		if n.Use == "official" {
			return n.Display()
		}
	}
	if len(p.Name) > 0 {
		return p.Name[0].Display()
	}
	return ""
}

type ObservationComponent struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity *Quantity       `json:"valueQuantity,omitempty"`
}

type Observation struct {
	ResourceType      string                 `json:"resourceType"`
	ID                string                 `json:"id"`
	Status            string                 `json:"status,omitempty"`
	Category          []CodeableConcept      `json:"category,omitempty"`
	Code              CodeableConcept        `json:"code"`
	Subject           *Reference             `json:"subject,omitempty"`
	EffectiveDateTime string                 `json:"effectiveDateTime,omitempty"`
	Issued            string                 `json:"issued,omitempty"`
	ValueQuantity     *Quantity              `json:"valueQuantity,omitempty"`
	ValueString       string                 `json:"valueString,omitempty"`
	Component         []ObservationComponent `json:"component,omitempty"`
}

// EffectiveTime returns the observation timestamp, preferring
// effectiveDateTime and falling back to issued. Cerner omits
// effectiveDateTime on some vital-sign profiles. The second return is
// false when neither element parses.
func (o *Observation) EffectiveTime() (time.Time, bool) {
	for _, raw := range []string{o.EffectiveDateTime, o.Issued} {
		if raw == "" {
			continue
		}
		if t, err := ParseTime(raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type Condition struct {
	ResourceType   string           `json:"resourceType"`
	ID             string           `json:"id"`
	ClinicalStatus *CodeableConcept `json:"clinicalStatus,omitempty"`
	Code           *CodeableConcept `json:"code,omitempty"`
	Subject        *Reference       `json:"subject,omitempty"`
	RecordedDate   string           `json:"recordedDate,omitempty"`
}

type AllergyIntolerance struct {
	ResourceType       string           `json:"resourceType"`
	ID                 string           `json:"id"`
	ClinicalStatus     *CodeableConcept `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept `json:"verificationStatus,omitempty"`
	Code               *CodeableConcept `json:"code,omitempty"`
	Patient            *Reference       `json:"patient,omitempty"`
	Criticality        string           `json:"criticality,omitempty"`
}

type MedicationRequest struct {
	ResourceType              string           `json:"resourceType"`
	ID                        string           `json:"id"`
	Status                    string           `json:"status,omitempty"`
	Intent                    string           `json:"intent,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`
	Subject                   *Reference       `json:"subject,omitempty"`
	AuthoredOn                string           `json:"authoredOn,omitempty"`
}

// MedicationDisplay resolves the medication name from whichever element
// the vendor populated.
func (m *MedicationRequest) MedicationDisplay() string {
	if s := m.MedicationCodeableConcept.DisplayText(); s != "" {
		return s
	}
	if m.MedicationReference != nil {
		return m.MedicationReference.Display
	}
	return ""
}

type Encounter struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id"`
	Status       string            `json:"status,omitempty"`
	Class        *Coding           `json:"class,omitempty"`
	Type         []CodeableConcept `json:"type,omitempty"`
	Subject      *Reference        `json:"subject,omitempty"`
	Period       *Period           `json:"period,omitempty"`
}

// ---------------------------------------------------------------------------
// Bundle
// ---------------------------------------------------------------------------

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// Resources decodes every bundle entry into T, skipping entries that fail
// to decode or whose resourceType does not match want. Vendors routinely
// mix OperationOutcome entries into search results; those are dropped
// here rather than failing the whole page.
func Resources[T any](b *Bundle, want string) []T {
	var out []T
	for _, e := range b.Entry {
		if len(e.Resource) == 0 {
			continue
		}
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(e.Resource, &probe); err != nil || probe.ResourceType != want {
			continue
		}
		var r T
		if err := json.Unmarshal(e.Resource, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseTime accepts the instant and date precisions FHIR allows.
func ParseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
