package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// Partial unique index allowing at most one active lock per company month.
const activeLockConstraint = "uk_payroll_month_lock_active"

type payrollLockRepository struct {
	db *database.DB
}

func NewPayrollLockRepository(db *database.DB) payroll.LockRepository {
	return &payrollLockRepository{db: db}
}

const lockColumns = `
	id, company_id, period_year, period_month, locked_by, locked_at,
	unlocked_by, unlocked_at, unlock_reason, metadata
`

func scanLock(row pgx.Row) (payroll.MonthLock, error) {
	var l payroll.MonthLock
	var metadata []byte
	err := row.Scan(
		&l.ID, &l.CompanyID, &l.Period.Year, &l.Period.Month, &l.LockedBy, &l.LockedAt,
		&l.UnlockedBy, &l.UnlockedAt, &l.UnlockReason, &metadata,
	)
	if err != nil {
		return payroll.MonthLock{}, err
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &l.Metadata)
	}
	return l, nil
}

func (r *payrollLockRepository) AcquireMonth(ctx context.Context, companyID string, period payroll.Period) error {
	// Transaction-scoped: outside a transaction the lock would be dropped
	// as soon as the statement returns.
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return errors.New("month lock requires a transaction")
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, companyID+":"+period.String()); err != nil {
		return fmt.Errorf("failed to acquire month lock: %w", err)
	}
	return nil
}

func (r *payrollLockRepository) GetLatest(ctx context.Context, companyID string, period payroll.Period) (payroll.MonthLock, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + lockColumns + `
		FROM payroll_month_locks
		WHERE company_id = $1 AND period_year = $2 AND period_month = $3
		ORDER BY locked_at DESC, id DESC
		LIMIT 1
	`

	l, err := scanLock(q.QueryRow(ctx, query, companyID, period.Year, period.Month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.MonthLock{}, payroll.ErrLockNotFound
		}
		return payroll.MonthLock{}, fmt.Errorf("failed to get month lock: %w", err)
	}
	return l, nil
}

func (r *payrollLockRepository) Create(ctx context.Context, lock payroll.MonthLock) (payroll.MonthLock, error) {
	q := GetQuerier(ctx, r.db)

	metadata, err := json.Marshal(lock.Metadata)
	if err != nil {
		return payroll.MonthLock{}, fmt.Errorf("failed to encode lock metadata: %w", err)
	}

	query := `
		INSERT INTO payroll_month_locks (id, company_id, period_year, period_month, locked_by, locked_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + lockColumns

	created, err := scanLock(q.QueryRow(ctx, query,
		lock.ID, lock.CompanyID, lock.Period.Year, lock.Period.Month, lock.LockedBy, lock.LockedAt, metadata,
	))
	if err != nil {
		if isUniqueViolation(err, activeLockConstraint) {
			return payroll.MonthLock{}, payroll.ErrConflict
		}
		return payroll.MonthLock{}, fmt.Errorf("failed to create month lock: %w", err)
	}
	return created, nil
}

func (r *payrollLockRepository) Release(ctx context.Context, companyID string, period payroll.Period, unlockedBy, reason string, at time.Time) (payroll.MonthLock, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_month_locks
		SET unlocked_by = $4, unlocked_at = $5, unlock_reason = $6
		WHERE company_id = $1 AND period_year = $2 AND period_month = $3 AND unlocked_at IS NULL
		RETURNING ` + lockColumns

	released, err := scanLock(q.QueryRow(ctx, query, companyID, period.Year, period.Month, unlockedBy, at, reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.MonthLock{}, payroll.ErrMonthNotLocked
		}
		return payroll.MonthLock{}, fmt.Errorf("failed to release month lock: %w", err)
	}
	return released, nil
}

func (r *payrollLockRepository) ListByPeriod(ctx context.Context, companyID string, period payroll.Period) ([]payroll.MonthLock, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + lockColumns + `
		FROM payroll_month_locks
		WHERE company_id = $1 AND period_year = $2 AND period_month = $3
		ORDER BY locked_at DESC, id DESC
	`

	rows, err := q.Query(ctx, query, companyID, period.Year, period.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to list month locks: %w", err)
	}
	defer rows.Close()

	locks := make([]payroll.MonthLock, 0)
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan month lock: %w", err)
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}
