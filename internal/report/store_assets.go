package report

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AddAsset binds an uploaded file to a report. Uploads are only accepted
// while the report is still pending; once orchestration starts the asset set
// is frozen.
func (s *Store) AddAsset(ctx context.Context, reportID string, kind AssetKind, storageRef string, size int64) (*Asset, error) {
	if reportID == "" {
		return nil, errors.New("report id required")
	}
	if storageRef == "" {
		return nil, errors.New("storage reference required")
	}

	rep, err := s.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep == nil {
		return nil, fmt.Errorf("report %s not found", reportID)
	}
	if rep.Status != StatusPending {
		return nil, fmt.Errorf("%w: assets frozen in status %s", ErrIllegalTransition, rep.Status)
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO report_assets (report_id, kind, storage_ref, size, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		reportID, kind, storageRef, size, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &Asset{
		ID:         id,
		ReportID:   reportID,
		Kind:       kind,
		StorageRef: storageRef,
		Size:       size,
		CreatedAt:  now,
	}, nil
}

// AssetsByReport returns a report's uploads in insertion order.
func (s *Store) AssetsByReport(ctx context.Context, reportID string) ([]*Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, report_id, kind, storage_ref, size, created_at
         FROM report_assets WHERE report_id = ? ORDER BY id`,
		reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		var (
			asset     Asset
			createdAt string
		)
		if err := rows.Scan(&asset.ID, &asset.ReportID, &asset.Kind, &asset.StorageRef, &asset.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		if created, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			asset.CreatedAt = created
		}
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}

// AssetsByKind partitions a report's uploads by asset kind.
func (s *Store) AssetsByKind(ctx context.Context, reportID string) (map[AssetKind][]*Asset, error) {
	assets, err := s.AssetsByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	byKind := make(map[AssetKind][]*Asset, 2)
	for _, asset := range assets {
		byKind[asset.Kind] = append(byKind[asset.Kind], asset)
	}
	return byKind, nil
}
