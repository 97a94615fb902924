// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

// TransitionEvent is one entry in a machine's audit trail. The store
// appends an event in the same transaction as every status write, so
// the trail and the record can never disagree about what happened.
//
// From is empty for the provisioning event (the machine had no prior
// status). JobID is the job bound to the machine when the transition
// happened — empty for transitions that did not involve a job, and
// the released job for hold expiry and cycle completion.
type TransitionEvent struct {
	EventID   string `json:"event_id"`
	MachineID string `json:"machine_id"`
	From      Status `json:"from,omitempty"`
	To        Status `json:"to"`
	JobID     string `json:"job_id,omitempty"`
	Reason    string `json:"reason"`
	CreatedAt int64  `json:"created_at"`
}
