package models

import "time"

type SubmissionStatus string

const (
	StatusQueued  SubmissionStatus = "queued"
	StatusSending SubmissionStatus = "sending"
	StatusSent    SubmissionStatus = "sent"
	StatusFailed  SubmissionStatus = "failed"
)

// ClientSubmissionIDField is the payload key carrying the idempotency
// token. The same value is sent in the Idempotency-Key request header.
const ClientSubmissionIDField = "clientSubmissionId"

// QueuedSubmission is one pending or terminal unit of work. Entries
// that reach "sent" are deleted from the store immediately; "failed"
// entries stay until an explicit retry or clear.
type QueuedSubmission struct {
	ID                 string           `json:"id"`
	Endpoint           string           `json:"endpoint"`
	Method             string           `json:"method"`
	Payload            map[string]any   `json:"payload"`
	ClientSubmissionID string           `json:"client_submission_id"`
	Status             SubmissionStatus `json:"status"`
	Attempts           int              `json:"attempts"`
	LastError          string           `json:"last_error,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// QueueStats counts live entries by status.
type QueueStats struct {
	Queued  int `json:"queued"`
	Sending int `json:"sending"`
	Failed  int `json:"failed"`
}

func (s QueueStats) Total() int {
	return s.Queued + s.Sending + s.Failed
}

// FlushStats summarizes one flush run.
type FlushStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}
