package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spotmarket/slot-reservation/internal/booking"
	"github.com/spotmarket/slot-reservation/internal/model"
)

// ResourceRepo provides persistence for bookable resources and their
// zones, and implements booking.ResourceProvider.  Lookups always hit
// the database so rate or capacity edits by the merchant take effect on
// the next request.
type ResourceRepo struct {
	db *sql.DB
}

// NewResourceRepo returns a new ResourceRepo bound to the given database.
func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

// Create inserts a resource together with its zone capacities in one
// transaction and populates the generated ID and timestamps.
func (r *ResourceRepo) Create(ctx context.Context, res *model.Resource) error {
	hours, err := json.Marshal(res.OpeningHours)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mapStorageErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const q = `INSERT INTO resources
	           (owner_id, kind, name, address, contact_number, rate_per_hour_cents, is_24x7, opening_hours, is_active)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.OwnerID, string(res.Kind), res.Name, res.Address, res.ContactNumber,
		res.RatePerHourCents, res.Is24x7, hours, res.IsActive,
	)
	if err != nil {
		return mapStorageErr(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return mapStorageErr(err)
	}
	res.ID = uint64(id)

	if len(res.CapacityByZone) > 0 {
		zq := `INSERT INTO resource_zones (resource_id, zone_code, capacity) VALUES `
		args := make([]any, 0, len(res.CapacityByZone)*3)
		first := true
		for zone, capacity := range res.CapacityByZone {
			if !first {
				zq += ","
			}
			first = false
			zq += "(?, ?, ?)"
			args = append(args, res.ID, zone, capacity)
		}
		if _, err := tx.ExecContext(ctx, zq, args...); err != nil {
			return mapStorageErr(err)
		}
	}

	const sel = `SELECT created_at, updated_at FROM resources WHERE id = ?`
	if err := tx.QueryRowContext(ctx, sel, res.ID).Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		return mapStorageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapStorageErr(err)
	}
	committed = true
	return nil
}

// GetByID loads a resource with its zone capacities.  Returns
// booking.ErrNotFound when no such resource exists.
func (r *ResourceRepo) GetByID(ctx context.Context, id uint64) (*model.Resource, error) {
	const q = `SELECT id, owner_id, kind, name, address, contact_number,
	                  rate_per_hour_cents, is_24x7, opening_hours, is_active, created_at, updated_at
	           FROM resources WHERE id = ?`
	var res model.Resource
	var kind string
	var hours []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&res.ID, &res.OwnerID, &kind, &res.Name, &res.Address, &res.ContactNumber,
		&res.RatePerHourCents, &res.Is24x7, &hours, &res.IsActive, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: resource %d", booking.ErrNotFound, id)
		}
		return nil, mapStorageErr(err)
	}
	res.Kind = model.ResourceKind(kind)
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &res.OpeningHours); err != nil {
			return nil, fmt.Errorf("resource %d: decode opening hours: %w", id, err)
		}
	}

	const zq = `SELECT zone_code, capacity FROM resource_zones WHERE resource_id = ?`
	rows, err := r.db.QueryContext(ctx, zq, id)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()
	res.CapacityByZone = make(map[string]uint32)
	for rows.Next() {
		var zone string
		var capacity uint32
		if err := rows.Scan(&zone, &capacity); err != nil {
			return nil, err
		}
		res.CapacityByZone[zone] = capacity
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err)
	}
	return &res, nil
}

// ListByOwner returns every resource registered by a merchant, without
// zone details (listing views do not need them).
func (r *ResourceRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Resource, error) {
	const q = `SELECT id, owner_id, kind, name, address, contact_number,
	                  rate_per_hour_cents, is_24x7, is_active, created_at, updated_at
	           FROM resources WHERE owner_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()
	out := make([]model.Resource, 0)
	for rows.Next() {
		var res model.Resource
		var kind string
		if err := rows.Scan(
			&res.ID, &res.OwnerID, &kind, &res.Name, &res.Address, &res.ContactNumber,
			&res.RatePerHourCents, &res.Is24x7, &res.IsActive, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		res.Kind = model.ResourceKind(kind)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err)
	}
	return out, nil
}
