package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

type attendanceFeed struct {
	db *database.DB
}

func NewAttendanceFeed(db *database.DB) attendance.Feed {
	return &attendanceFeed{db: db}
}

// ListClassifiedDays implements attendance.Feed.
// Records waiting for approval are not final and are left out.
func (a *attendanceFeed) ListClassifiedDays(ctx context.Context, companyID string, employeeIDs []string, from, to time.Time) ([]attendance.Day, error) {
	if len(employeeIDs) == 0 {
		return []attendance.Day{}, nil
	}
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT a.employee_id, a.date,
			CASE a.status
				WHEN 'absent' THEN 'absent'
				WHEN 'rejected' THEN 'correction_rejected'
				WHEN 'leave' THEN 'on_leave'
				ELSE 'present'
			END AS classification,
			COALESCE(a.is_half_day, false)
		FROM attendances a
		WHERE a.company_id = $1
		  AND a.employee_id = ANY($2)
		  AND a.date BETWEEN $3 AND $4
		  AND a.status <> 'waiting_approval'
		ORDER BY a.employee_id, a.date
	`

	rows, err := q.Query(ctx, query, companyID, employeeIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance days: %w", err)
	}
	defer rows.Close()

	days := make([]attendance.Day, 0)
	for rows.Next() {
		var d attendance.Day
		if err := rows.Scan(&d.EmployeeID, &d.Date, &d.Classification, &d.IsHalfDay); err != nil {
			return nil, fmt.Errorf("failed to scan attendance day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
