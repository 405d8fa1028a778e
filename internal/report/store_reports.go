package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const reportColumns = `id, owner_id, kinds, status, cost, result_json, notes,
    requested_at, claim_token, last_heartbeat, created_at, updated_at`

// Create inserts a new pending report with the cost reserved for it.
func (s *Store) Create(ctx context.Context, ownerID string, kinds []AnalysisKind, cost decimal.Decimal) (*Report, error) {
	if ownerID == "" {
		return nil, errors.New("owner id required")
	}
	if len(kinds) == 0 {
		return nil, errors.New("at least one analysis kind required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO reports (id, owner_id, kinds, status, cost, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		ownerID,
		encodeKinds(kinds),
		StatusPending,
		cost.String(),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a report by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return rep, nil
}

// ListByOwner returns a user's reports, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Report, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reportColumns+` FROM reports WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports by owner: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// List returns reports filtered by status set (or all reports when no status
// is provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Report, error) {
	baseQuery := `SELECT ` + reportColumns + ` FROM reports`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// MarkAnalyzeRequested records that the owner asked for the analysis to run.
// The workflow manager only picks up requested reports.
func (s *Store) MarkAnalyzeRequested(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE reports SET requested_at = COALESCE(requested_at, ?), updated_at = ?
         WHERE id = ? AND status = ?`,
		now, now, id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark analyze requested: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// NextRunnable returns the oldest pending report whose analysis has been
// requested and that no worker has claimed.
func (s *Store) NextRunnable(ctx context.Context) (*Report, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reportColumns+` FROM reports
         WHERE status = ? AND requested_at IS NOT NULL AND claim_token IS NULL
         ORDER BY requested_at LIMIT 1`,
		StatusPending,
	)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next runnable report: %w", err)
	}
	return rep, nil
}

// Claim atomically assigns a report to a worker. It returns false when
// another worker holds the claim, so no two workers ever process one report.
func (s *Store) Claim(ctx context.Context, id, token string) (bool, error) {
	if token == "" {
		return false, errors.New("claim token required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE reports SET claim_token = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND claim_token IS NULL AND status = ?`,
		token, now, now, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ReleaseClaim drops a worker's claim, leaving the report runnable again.
// Used when a claim was acquired but orchestration never started.
func (s *Store) ReleaseClaim(ctx context.Context, id, token string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE reports SET claim_token = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND claim_token = ?`,
		now, id, token,
	); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Transition moves a report between lifecycle states. The update is guarded
// on the expected current status: if no row matches, the transition is
// rejected with ErrIllegalTransition. Terminal states are never left.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE reports SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from,
	)
	if err != nil {
		return fmt.Errorf("transition report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s -> %s (current status differs)", ErrIllegalTransition, from, to)
	}
	return nil
}

// Complete writes the aggregated result and moves the report to completed.
func (s *Store) Complete(ctx context.Context, id, resultJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE reports SET status = ?, result_json = ?, claim_token = NULL,
            last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted, resultJSON, now, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: processing -> completed", ErrIllegalTransition)
	}
	return nil
}

// MarkFailed forces a report into its terminal failed state from any
// non-terminal status. The notes must tell the user whether a refund
// accompanied the failure.
func (s *Store) MarkFailed(ctx context.Context, id, notes string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE reports SET status = ?, notes = ?, claim_token = NULL,
            last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, notes, now, id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: -> failed (report already terminal)", ErrIllegalTransition)
	}
	return nil
}

// UpdateHeartbeat records liveness for an in-flight report.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE reports SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// StaleProcessing returns reports stuck in processing whose heartbeat expired
// before the cutoff. The workflow manager routes these through compensation
// rather than resetting them, because their credit was already debited.
func (s *Store) StaleProcessing(ctx context.Context, cutoff time.Time) ([]*Report, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reportColumns+` FROM reports
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?
         ORDER BY created_at`,
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale processing: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// Health returns aggregated report counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var summary HealthSummary
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM reports GROUP BY status`)
	if err != nil {
		return summary, fmt.Errorf("query health: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return summary, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var (
		rep           Report
		kinds         string
		cost          string
		resultJSON    sql.NullString
		notes         sql.NullString
		requestedAt   sql.NullString
		claimToken    sql.NullString
		lastHeartbeat sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := row.Scan(
		&rep.ID, &rep.OwnerID, &kinds, &rep.Status, &cost, &resultJSON, &notes,
		&requestedAt, &claimToken, &lastHeartbeat, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	rep.Kinds = decodeKinds(kinds)
	parsedCost, err := decimal.NewFromString(cost)
	if err != nil {
		return nil, fmt.Errorf("parse report cost %q: %w", cost, err)
	}
	rep.Cost = parsedCost
	rep.ResultJSON = resultJSON.String
	rep.Notes = notes.String
	rep.ClaimToken = claimToken.String

	if rep.RequestedAt, err = parseTime(requestedAt); err != nil {
		return nil, err
	}
	if rep.LastHeartbeat, err = parseTime(lastHeartbeat); err != nil {
		return nil, err
	}
	if created, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rep.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rep.UpdatedAt = updated
	}
	return &rep, nil
}

func collectReports(rows *sql.Rows) ([]*Report, error) {
	var reports []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	buf := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}
