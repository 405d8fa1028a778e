package apiclient

import (
	"encoding/json"
	"time"
)

// Health mirrors the daemon's /healthz payload.
type Health struct {
	Status     string `json:"status"`
	Workers    bool   `json:"workers_running"`
	Reports    int    `json:"reports"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
}

// Report mirrors the daemon's report payload.
type Report struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Kinds       []string        `json:"kinds"`
	Status      string          `json:"status"`
	Cost        string          `json:"cost"`
	Result      json.RawMessage `json:"result,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	RequestedAt *time.Time      `json:"requested_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Asset mirrors the daemon's asset payload.
type Asset struct {
	ID       int64  `json:"id"`
	ReportID string `json:"report_id"`
	Kind     string `json:"kind"`
	Size     int64  `json:"size"`
}

// Balance mirrors the daemon's credit balance payload.
type Balance struct {
	AccountID      string `json:"account_id"`
	Balance        string `json:"balance"`
	TotalPurchased string `json:"total_purchased"`
	TotalUsed      string `json:"total_used"`
	TotalRefunded  string `json:"total_refunded"`
}

// Transaction mirrors the daemon's ledger transaction payload.
type Transaction struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
