// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/washhouse-systems/washhouse/lib/codec"
)

// validRecord returns a Record with all fields set to valid values.
// Tests modify individual fields to probe validation.
func validRecord() Record {
	return Record{
		ID:         "lr-201/washer-04",
		Location:   "lr-201",
		JobID:      "job-7f3a",
		Status:     StatusAwaitingDropoff,
		ReservedAt: 1767225600,
		UpdatedAt:  1767225600,
	}
}

func TestStatusValid(t *testing.T) {
	for _, status := range []Status{StatusAvailable, StatusAwaitingDropoff, StatusRunning, StatusError} {
		if !status.Valid() {
			t.Errorf("Valid(%s) = false, want true", status)
		}
	}
	for _, status := range []Status{"", "available", "IDLE", "AWAITING", "RUNNING "} {
		if status.Valid() {
			t.Errorf("Valid(%q) = true, want false", status)
		}
	}
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("RUNNING")
	if err != nil {
		t.Fatalf("ParseStatus(RUNNING): %v", err)
	}
	if status != StatusRunning {
		t.Errorf("ParseStatus(RUNNING) = %q, want %q", status, StatusRunning)
	}

	if _, err := ParseStatus("BROKEN"); err == nil {
		t.Fatal("ParseStatus(BROKEN) = nil, want error")
	} else if !strings.Contains(err.Error(), `unknown machine status "BROKEN"`) {
		t.Errorf("ParseStatus(BROKEN) = %q, want unknown-status error", err)
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		// The seven legal transitions.
		{StatusAvailable, StatusAwaitingDropoff, true},
		{StatusAwaitingDropoff, StatusRunning, true},
		{StatusAwaitingDropoff, StatusError, true},
		{StatusAwaitingDropoff, StatusAvailable, true},
		{StatusRunning, StatusAvailable, true},
		{StatusRunning, StatusError, true},
		{StatusError, StatusAvailable, true},

		// Everything else is rejected, self-transitions included.
		{StatusAvailable, StatusAvailable, false},
		{StatusAvailable, StatusRunning, false},
		{StatusAvailable, StatusError, false},
		{StatusAwaitingDropoff, StatusAwaitingDropoff, false},
		{StatusRunning, StatusRunning, false},
		{StatusRunning, StatusAwaitingDropoff, false},
		{StatusError, StatusError, false},
		{StatusError, StatusRunning, false},
		{StatusError, StatusAwaitingDropoff, false},
	}

	for _, test := range tests {
		err := ValidateTransition(test.from, test.to)
		if test.allowed && err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v, want nil", test.from, test.to, err)
		}
		if !test.allowed && err == nil {
			t.Errorf("ValidateTransition(%s, %s) = nil, want error", test.from, test.to)
		}
	}

	if err := ValidateTransition("LIMBO", StatusAvailable); err == nil {
		t.Fatal("ValidateTransition(LIMBO, AVAILABLE) = nil, want error")
	} else if !strings.Contains(err.Error(), "unknown current status") {
		t.Errorf("ValidateTransition(LIMBO, AVAILABLE) = %q, want unknown-status error", err)
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(r *Record)
		wantErr string
	}{
		{
			name:    "valid_awaiting_dropoff",
			modify:  func(r *Record) {},
			wantErr: "",
		},
		{
			name: "valid_available",
			modify: func(r *Record) {
				r.JobID = ""
				r.Status = StatusAvailable
				r.ReservedAt = 0
			},
			wantErr: "",
		},
		{
			name: "valid_running",
			modify: func(r *Record) {
				r.Status = StatusRunning
				r.ReservedAt = 0
			},
			wantErr: "",
		},
		{
			name: "valid_error_with_job",
			modify: func(r *Record) {
				r.Status = StatusError
				r.ReservedAt = 0
			},
			wantErr: "",
		},
		{
			name: "valid_error_without_job",
			modify: func(r *Record) {
				r.JobID = ""
				r.Status = StatusError
				r.ReservedAt = 0
			},
			wantErr: "",
		},
		{
			name:    "id_empty",
			modify:  func(r *Record) { r.ID = "" },
			wantErr: "machine id is empty",
		},
		{
			name:    "id_bad_character",
			modify:  func(r *Record) { r.ID = "Washer-04" },
			wantErr: "invalid character 'W' at position 0",
		},
		{
			name:    "id_too_long",
			modify:  func(r *Record) { r.ID = strings.Repeat("x", 65) },
			wantErr: "maximum is 64",
		},
		{
			name:    "id_leading_slash",
			modify:  func(r *Record) { r.ID = "/washer-04" },
			wantErr: "must not start with /",
		},
		{
			name:    "id_trailing_slash",
			modify:  func(r *Record) { r.ID = "washer-04/" },
			wantErr: "must not end with /",
		},
		{
			name:    "id_double_slash",
			modify:  func(r *Record) { r.ID = "lr-201//washer-04" },
			wantErr: "empty segment",
		},
		{
			name:    "id_dot_segment",
			modify:  func(r *Record) { r.ID = "lr-201/.washer" },
			wantErr: `segment ".washer" starts with '.'`,
		},
		{
			name:    "location_empty",
			modify:  func(r *Record) { r.Location = "" },
			wantErr: "location id is empty",
		},
		{
			name:    "status_unknown",
			modify:  func(r *Record) { r.Status = "DEFROSTING" },
			wantErr: `unknown status "DEFROSTING"`,
		},
		{
			name: "available_with_job",
			modify: func(r *Record) {
				r.Status = StatusAvailable
				r.ReservedAt = 0
			},
			wantErr: "available machines carry no job",
		},
		{
			name: "awaiting_dropoff_without_job",
			modify: func(r *Record) {
				r.JobID = ""
			},
			wantErr: "AWAITING_DROPOFF without a job identifier",
		},
		{
			name: "running_without_job",
			modify: func(r *Record) {
				r.JobID = ""
				r.Status = StatusRunning
				r.ReservedAt = 0
			},
			wantErr: "RUNNING without a job identifier",
		},
		{
			name:    "awaiting_dropoff_without_reserved_at",
			modify:  func(r *Record) { r.ReservedAt = 0 },
			wantErr: "AWAITING_DROPOFF without a reservation timestamp",
		},
		{
			name: "running_with_reserved_at",
			modify: func(r *Record) {
				r.Status = StatusRunning
			},
			wantErr: "reservation timestamp set while RUNNING",
		},
		{
			name:    "job_too_long",
			modify:  func(r *Record) { r.JobID = strings.Repeat("j", 129) },
			wantErr: "maximum is 128",
		},
		{
			name:    "job_with_space",
			modify:  func(r *Record) { r.JobID = "job 7" },
			wantErr: "printable ASCII only",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			record := validRecord()
			test.modify(&record)
			err := record.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
			} else {
				if err == nil {
					t.Fatalf("Validate() = nil, want error containing %q", test.wantErr)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Errorf("Validate() = %q, want error containing %q", err, test.wantErr)
				}
			}
		})
	}
}

func TestRecordJSONWireFormat(t *testing.T) {
	record := validRecord()
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	want := map[string]any{
		"id":          "lr-201/washer-04",
		"location":    "lr-201",
		"job_id":      "job-7f3a",
		"status":      "AWAITING_DROPOFF",
		"reserved_at": float64(1767225600),
		"updated_at":  float64(1767225600),
	}
	for key, value := range want {
		if raw[key] != value {
			t.Errorf("field %q = %v, want %v", key, raw[key], value)
		}
	}

	// Empty job and zero reservation timestamp are omitted, not
	// emitted as empty values.
	idle := Record{ID: "washer-04", Location: "lr-201", Status: StatusAvailable, UpdatedAt: 100}
	data, err = json.Marshal(idle)
	if err != nil {
		t.Fatalf("Marshal idle: %v", err)
	}
	if strings.Contains(string(data), "job_id") {
		t.Errorf("idle record JSON contains job_id: %s", data)
	}
	if strings.Contains(string(data), "reserved_at") {
		t.Errorf("idle record JSON contains reserved_at: %s", data)
	}
}

func TestRecordCBORRoundTrip(t *testing.T) {
	original := validRecord()
	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Record
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch:\n  got  %+v\n  want %+v", decoded, original)
	}
}
