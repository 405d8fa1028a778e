package api

import (
	"encoding/json"
	"time"

	"mivvo/internal/ledger"
	"mivvo/internal/report"
)

type healthView struct {
	Status     string `json:"status"`
	Workers    bool   `json:"workers_running"`
	Reports    int    `json:"reports"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
}

type reportView struct {
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

type assetView struct {
	ID       int64  `json:"id"`
	ReportID string `json:"report_id"`
	Kind     string `json:"kind"`
	Size     int64  `json:"size"`
}

type balanceView struct {
	AccountID      string `json:"account_id"`
	Balance        string `json:"balance"`
	TotalPurchased string `json:"total_purchased"`
	TotalUsed      string `json:"total_used"`
	TotalRefunded  string `json:"total_refunded"`
}

type transactionView struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newReportView(rpt *report.Report) reportView {
	kinds := make([]string, 0, len(rpt.Kinds))
	for _, kind := range rpt.Kinds {
		kinds = append(kinds, string(kind))
	}
	view := reportView{
		ID:          rpt.ID,
		OwnerID:     rpt.OwnerID,
		Kinds:       kinds,
		Status:      string(rpt.Status),
		Cost:        rpt.Cost.String(),
		Notes:       rpt.Notes,
		RequestedAt: rpt.RequestedAt,
		CreatedAt:   rpt.CreatedAt,
		UpdatedAt:   rpt.UpdatedAt,
	}
	if rpt.Status == report.StatusCompleted && rpt.ResultJSON != "" {
		view.Result = json.RawMessage(rpt.ResultJSON)
	}
	return view
}

func newAssetView(asset *report.Asset) assetView {
	return assetView{
		ID:       asset.ID,
		ReportID: asset.ReportID,
		Kind:     string(asset.Kind),
		Size:     asset.Size,
	}
}

func newBalanceView(balance ledger.Balance) balanceView {
	return balanceView{
		AccountID:      balance.AccountID,
		Balance:        balance.Balance.String(),
		TotalPurchased: balance.TotalPurchased.String(),
		TotalUsed:      balance.TotalUsed.String(),
		TotalRefunded:  balance.TotalRefunded.String(),
	}
}

func newTransactionView(tx ledger.Transaction) transactionView {
	return transactionView{
		ID:          tx.ID,
		Type:        string(tx.Type),
		Amount:      tx.Amount.String(),
		ReferenceID: tx.ReferenceID,
		Note:        tx.Note,
		CreatedAt:   tx.CreatedAt,
	}
}
