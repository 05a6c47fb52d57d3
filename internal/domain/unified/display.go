package unified

import (
	"strings"
)

// DisplayText renders the compact summary string shown on the AR-glasses
// display. Pure formatting over a PatientSummary; layout is fixed:
//
//	PATIENT: <name>
//	<gender> | DOB: <dob>
//	VITALS:
//	  <name>: <value> <unit>
//	ALLERGIES: <a>, <b>
//
// Sections with no data are omitted except ALLERGIES, which always
// renders ("NKDA" when empty) because clinicians treat a missing allergy
// line as unknown rather than none.
func DisplayText(s *PatientSummary) string {
	var b strings.Builder

	b.WriteString("PATIENT: ")
	b.WriteString(s.Patient.Name)
	b.WriteByte('\n')

	var demo []string
	if s.Patient.Gender != "" {
		demo = append(demo, s.Patient.Gender)
	}
	if s.Patient.DateOfBirth != "" {
		demo = append(demo, "DOB: "+s.Patient.DateOfBirth)
	}
	if len(demo) > 0 {
		b.WriteString(strings.Join(demo, " | "))
		b.WriteByte('\n')
	}

	if len(s.Vitals) > 0 {
		b.WriteString("VITALS:\n")
		for _, v := range s.Vitals {
			b.WriteString("  ")
			b.WriteString(v.Name)
			b.WriteString(": ")
			b.WriteString(v.Value)
			if v.Unit != "" {
				b.WriteByte(' ')
				b.WriteString(v.Unit)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("ALLERGIES: ")
	if len(s.Allergies) == 0 {
		b.WriteString("NKDA")
	} else {
		b.WriteString(strings.Join(s.Allergies, ", "))
	}
	b.WriteByte('\n')

	return b.String()
}
