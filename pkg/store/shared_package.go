package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/memhub/memoryd/pkg/apperr"
)

// CreateSharedPackage persists a signed export bundle for later
// retrieval by id, in addition to the payload being handed back to the
// caller directly.
func (s *Store) CreateSharedPackage(ctx context.Context, payload map[string]any, signature string, expiresAt time.Time, meta map[string]any) (*SharedPackage, error) {
	payloadJSON, err := marshalMeta(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shared package payload: %w", err)
	}
	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shared package meta: %w", err)
	}
	sp := &SharedPackage{ID: newID(), ExpiresAt: expiresAt, Payload: payload, Signature: signature, Meta: meta}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO shared_packages (shared_package_id, expires_at, payload, signature, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		sp.ID, sp.ExpiresAt, payloadJSON, sp.Signature, metaJSON)
	if err := row.Scan(&sp.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create shared package: %w", err)
	}
	return sp, nil
}

// GetSharedPackage loads a previously created shared package by id,
// returning apperr.ErrPackageExpired if expires_at has passed.
func (s *Store) GetSharedPackage(ctx context.Context, id string) (*SharedPackage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT shared_package_id, created_at, expires_at, payload, signature, meta
		FROM shared_packages WHERE shared_package_id = $1`, id)
	sp, err := scanSharedPackage(row)
	if err != nil {
		return nil, err
	}
	if time.Now().After(sp.ExpiresAt) {
		return nil, apperr.ErrPackageExpired
	}
	return sp, nil
}

// DeleteSharedPackagesOlderThan removes expired packages past cutoff,
// used by the retention sweep.
func (s *Store) DeleteSharedPackagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shared_packages WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired shared packages: %w", err)
	}
	return res.RowsAffected()
}

func scanSharedPackage(row rowScanner) (*SharedPackage, error) {
	var sp SharedPackage
	var payloadJSON, metaJSON []byte
	if err := row.Scan(&sp.ID, &sp.CreatedAt, &sp.ExpiresAt, &payloadJSON, &sp.Signature, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan shared package: %w", err)
	}
	payload, err := unmarshalMeta(payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal shared package payload: %w", err)
	}
	sp.Payload = payload
	meta, err := unmarshalMeta(metaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal shared package meta: %w", err)
	}
	sp.Meta = meta
	return &sp, nil
}
