package model

import (
	"encoding/json"
	"time"
)

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// Call tracks one outbound reminder call through its lifecycle:
// queued -> in_progress -> completed|failed. VapiCallID is the provider-issued
// identifier, set exactly once on successful dispatch and unique across calls.
type Call struct {
	ID          int64      `db:"id" json:"id"`
	PatientID   int64      `db:"patient_id" json:"patient_id"`
	VapiCallID  *string    `db:"vapi_call_id" json:"vapi_call_id,omitempty"`
	Status      CallStatus `db:"status" json:"status"`
	ScheduledAt *string    `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *string    `db:"started_at" json:"started_at,omitempty"`
	EndedAt     *string    `db:"ended_at" json:"ended_at,omitempty"`
	FailReason  *string    `db:"fail_reason" json:"fail_reason,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Terminal reports whether the call can no longer change state.
func (c *Call) Terminal() bool {
	return c.Status == CallStatusCompleted || c.Status == CallStatusFailed
}

// CallResult holds the outcome delivered by the provider's end-of-call
// webhook. At most one row exists per call; redeliveries overwrite it.
type CallResult struct {
	ID             int64           `db:"id" json:"id"`
	CallID         int64           `db:"call_id" json:"call_id"`
	Summary        *string         `db:"summary" json:"summary,omitempty"`
	StructuredJSON json.RawMessage `db:"structured_json" json:"structured_json,omitempty"`
	RawPayload     json.RawMessage `db:"raw_payload" json:"raw_payload,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// CallStatusUpdate carries the fields a webhook may set on a call. Nil
// pointers leave the stored value untouched.
type CallStatusUpdate struct {
	Status          CallStatus
	StartedAt       *string
	EndedAt         *string
	ClearFailReason bool
}

type LaunchCallsRequest struct {
	PatientIDs []int64 `json:"patientIds"`
	ScheduleAt string  `json:"scheduleAt"`
}

type LaunchCallsResponse struct {
	CallIDs []int64 `json:"callIds"`
}

// CallDetail joins a call with its patient and result for read endpoints.
type CallDetail struct {
	Call    *Call       `json:"call"`
	Patient *Patient    `json:"patient,omitempty"`
	Result  *CallResult `json:"result,omitempty"`
}
