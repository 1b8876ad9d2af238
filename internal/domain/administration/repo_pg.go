package administration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardline/mar/internal/platform/db"
	"github.com/wardline/mar/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Administration Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const adminCols = `id, prescription_ref, scheduled_time, status,
	dosage_given, route_given, notes, administered_at, administered_by_ref,
	is_adjusted, version, created_at, updated_at`

func scanAdmin(row pgx.Row) (*Administration, error) {
	var a Administration
	err := row.Scan(&a.ID, &a.PrescriptionRef, &a.ScheduledTime, &a.Status,
		&a.DosageGiven, &a.RouteGiven, &a.Notes, &a.AdministeredAt, &a.AdministeredByRef,
		&a.IsAdjusted, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Administration) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication_administration
			(id, prescription_ref, scheduled_time, status, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING version, created_at, updated_at`,
		a.ID, a.PrescriptionRef, a.ScheduledTime, a.Status, a.Notes,
	).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Administration, error) {
	a, err := scanAdmin(r.conn(ctx).QueryRow(ctx,
		`SELECT `+adminCols+` FROM medication_administration WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundErr(id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateVersioned writes every mutable column, conditioned on the version
// the caller read. A zero-row result on an existing id means another writer
// got there first.
func (r *repoPG) UpdateVersioned(ctx context.Context, a *Administration, expectedVersion int64) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medication_administration
		SET status=$3, scheduled_time=$4, dosage_given=$5, route_given=$6, notes=$7,
			administered_at=$8, administered_by_ref=$9, is_adjusted=$10,
			version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		a.ID, expectedVersion,
		a.Status, a.ScheduledTime, a.DosageGiven, a.RouteGiven, a.Notes,
		a.AdministeredAt, a.AdministeredByRef, a.IsAdjusted,
	).Scan(&a.Version, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if checkErr := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM medication_administration WHERE id = $1)`, a.ID,
		).Scan(&exists); checkErr != nil {
			return checkErr
		}
		if !exists {
			return notFoundErr(a.ID)
		}
		return conflictErr(a.ID)
	}
	return err
}

func (r *repoPG) ListByPrescription(ctx context.Context, prescriptionRef uuid.UUID, p pagination.Params) ([]*Administration, int64, error) {
	var total int64
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medication_administration WHERE prescription_ref = $1`,
		prescriptionRef,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+adminCols+` FROM medication_administration
		WHERE prescription_ref = $1
		ORDER BY scheduled_time ASC `+p.SQL(),
		prescriptionRef)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := collectAdmins(rows)
	return items, total, err
}

func (r *repoPG) ListDue(ctx context.Context, until time.Time, p pagination.Params) ([]*Administration, int64, error) {
	var total int64
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM medication_administration
		WHERE status = $1 AND scheduled_time <= $2`,
		StatusScheduled, until,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+adminCols+` FROM medication_administration
		WHERE status = $1 AND scheduled_time <= $2
		ORDER BY scheduled_time ASC `+p.SQL(),
		StatusScheduled, until)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := collectAdmins(rows)
	return items, total, err
}

func (r *repoPG) ListScheduledAfter(ctx context.Context, prescriptionRef uuid.UUID, after time.Time) ([]*Administration, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+adminCols+` FROM medication_administration
		WHERE prescription_ref = $1 AND status = $2 AND scheduled_time > $3
		ORDER BY scheduled_time ASC`,
		prescriptionRef, StatusScheduled, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAdmins(rows)
}

func collectAdmins(rows pgx.Rows) ([]*Administration, error) {
	var items []*Administration
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Adjustment Repository ===========

type adjustmentRepoPG struct{ pool *pgxpool.Pool }

func NewAdjustmentRepoPG(pool *pgxpool.Pool) AdjustmentRepository {
	return &adjustmentRepoPG{pool: pool}
}

func (r *adjustmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const adjCols = `id, administration_id, original_time, adjusted_time, reason, adjusted_by_ref, created_at`

func scanAdjustment(row pgx.Row) (*ScheduleAdjustment, error) {
	var adj ScheduleAdjustment
	err := row.Scan(&adj.ID, &adj.AdministrationID, &adj.OriginalTime, &adj.AdjustedTime,
		&adj.Reason, &adj.AdjustedByRef, &adj.CreatedAt)
	return &adj, err
}

func (r *adjustmentRepoPG) Append(ctx context.Context, adj *ScheduleAdjustment) error {
	if adj.ID == uuid.Nil {
		adj.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication_schedule_adjustment
			(id, administration_id, original_time, adjusted_time, reason, adjusted_by_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		adj.ID, adj.AdministrationID, adj.OriginalTime, adj.AdjustedTime, adj.Reason, adj.AdjustedByRef,
	).Scan(&adj.CreatedAt)
}

func (r *adjustmentRepoPG) Latest(ctx context.Context, administrationID uuid.UUID) (*ScheduleAdjustment, error) {
	adj, err := scanAdjustment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+adjCols+` FROM medication_schedule_adjustment
		WHERE administration_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		administrationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return adj, nil
}

func (r *adjustmentRepoPG) ListByAdministration(ctx context.Context, administrationID uuid.UUID) ([]*ScheduleAdjustment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+adjCols+` FROM medication_schedule_adjustment
		WHERE administration_id = $1
		ORDER BY created_at ASC, id ASC`,
		administrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ScheduleAdjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, adj)
	}
	return items, rows.Err()
}
