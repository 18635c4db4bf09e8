package rpc

import "time"

// WebhookRequest is the request body for POST /webhook, as sent by the
// knowledge-base service when a book changes.
type WebhookRequest struct {
	Data WebhookData `json:"data"`
}

type WebhookData struct {
	BookID int `json:"book_id"`
}

// WebhookResponse is the response body for POST /webhook.
type WebhookResponse struct {
	BookID int    `json:"book_id"`
	Status string `json:"status"` // "queued" or "coalesced"
}

// RegenerateRequest is the request body for POST /regenerate.
type RegenerateRequest struct {
	BookID int `json:"book_id"`
}

// RegenerateResponse is the response body for POST /regenerate.
type RegenerateResponse struct {
	BookID    int    `json:"book_id"`
	Namespace string `json:"namespace"`
	Built     bool   `json:"built"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Repos   []RepoStatus `json:"repos"`
	Pending []int        `json:"pending,omitempty"`
	Runs    []RunStatus  `json:"runs"`
}

type RepoStatus struct {
	BookID    int    `json:"book_id"`
	Namespace string `json:"namespace"`
}

type RunStatus struct {
	ID         string     `json:"id"`
	Namespace  string     `json:"namespace"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Documents  int        `json:"documents"`
	Failures   int        `json:"failures"`
	Error      string     `json:"error,omitempty"`
}
