package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/leave"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

type leaveFeed struct {
	db *database.DB
}

func NewLeaveFeed(db *database.DB) leave.Feed {
	return &leaveFeed{db: db}
}

// ListApprovedDays implements leave.Feed. Approved requests overlapping the
// range are expanded into one row per date, clipped to [from, to].
func (r *leaveFeed) ListApprovedDays(ctx context.Context, companyID string, employeeIDs []string, from, to time.Time) ([]leave.Day, error) {
	if len(employeeIDs) == 0 {
		return []leave.Day{}, nil
	}
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT lr.employee_id, d::date, lt.id, lt.name, lt.is_paid, lr.duration_type
		FROM leave_requests lr
		INNER JOIN employees e ON lr.employee_id = e.id
		INNER JOIN leave_types lt ON lr.leave_type_id = lt.id
		CROSS JOIN LATERAL generate_series(
			GREATEST(lr.start_date, $3::date),
			LEAST(lr.end_date, $4::date),
			INTERVAL '1 day'
		) AS d
		WHERE e.company_id = $1
		  AND lr.employee_id = ANY($2)
		  AND lr.status = 'approved'
		  AND lr.start_date <= $4::date
		  AND lr.end_date >= $3::date
		ORDER BY lr.employee_id, d
	`

	rows, err := q.Query(ctx, query, companyID, employeeIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved leave days: %w", err)
	}
	defer rows.Close()

	days := make([]leave.Day, 0)
	for rows.Next() {
		var d leave.Day
		if err := rows.Scan(&d.EmployeeID, &d.Date, &d.LeaveTypeID, &d.LeaveTypeName, &d.IsPaid, &d.DurationType); err != nil {
			return nil, fmt.Errorf("failed to scan leave day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
