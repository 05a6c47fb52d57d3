package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestRecorderFunc(t *testing.T) {
	var got Entry
	r := RecorderFunc(func(_ context.Context, e Entry) error {
		got = e
		return nil
	})

	want := Entry{ID: uuid.New(), Action: "read", PatientID: "p1"}
	if err := r.Record(context.Background(), want); err != nil {
		t.Fatal(err)
	}
	if got.ID != want.ID || got.PatientID != "p1" {
		t.Errorf("entry not passed through: %+v", got)
	}
}

func TestLogRecorder_EmitsPHIAccessEvent(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogRecorder(zerolog.New(&buf))

	e := Entry{
		ID:         uuid.New(),
		Timestamp:  time.Now().UTC(),
		RequestID:  "req-1",
		PatientID:  "12724066",
		Vendor:     "epic",
		Action:     "read",
		Method:     "GET",
		Path:       "/patient/12724066",
		StatusCode: 200,
	}
	if err := r.Record(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if event["type"] != "phi_access" {
		t.Errorf("type = %v", event["type"])
	}
	if event["patient_id"] != "12724066" || event["vendor"] != "epic" {
		t.Errorf("unexpected event: %v", event)
	}
	if event["status"] != float64(200) {
		t.Errorf("status = %v", event["status"])
	}
}
