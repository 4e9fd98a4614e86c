package postgresql_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-payroll-engine/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestDatabaseSetup untuk menginisialisasi test database
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL, applies migrations and
// truncates the payroll tables. The test is skipped when the variable is unset.
func NewTestDatabase(t *testing.T) *TestDatabaseSetup {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolConfig{MaxConns: 10, MinConns: 1})
	require.NoError(t, err, "failed to connect to test database")

	setup := &TestDatabaseSetup{DB: db}
	t.Cleanup(setup.Close)

	require.NoError(t, migrations.Up(ctx, db))
	require.NoError(t, setup.TruncateAllTables(ctx))
	return setup
}

// TruncateAllTables menghapus semua data dari tabel
func (s *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"audit_logs",
		"payroll_month_locks",
		"payroll_lines",
		"salary_structure_histories",
		"salary_structures",
		"leave_requests",
		"leave_types",
		"attendances",
		"holidays",
		"employees",
	}

	for _, table := range tables {
		_, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

// SeedEmployee inserts an active employee and returns its id.
func (s *TestDatabaseSetup) SeedEmployee(t *testing.T, companyID, branchID, code, name string) string {
	t.Helper()
	id := newID()
	_, err := s.DB.Exec(context.Background(), `
		INSERT INTO employees (id, company_id, branch_id, employee_code, full_name, employment_status)
		VALUES ($1, $2, $3, $4, $5, 'active')
	`, id, companyID, branchID, code, name)
	require.NoError(t, err)
	return id
}

// SeedAttendance inserts one attendance row with the upstream status value.
func (s *TestDatabaseSetup) SeedAttendance(t *testing.T, companyID, employeeID string, date time.Time, status string) {
	t.Helper()
	_, err := s.DB.Exec(context.Background(), `
		INSERT INTO attendances (id, company_id, employee_id, date, status)
		VALUES ($1, $2, $3, $4, $5)
	`, newID(), companyID, employeeID, date, status)
	require.NoError(t, err)
}

// SeedApprovedLeave inserts an approved leave request of a new leave type.
func (s *TestDatabaseSetup) SeedApprovedLeave(t *testing.T, companyID, employeeID string, from, to time.Time, paid bool) {
	t.Helper()
	ctx := context.Background()
	typeID := newID()
	_, err := s.DB.Exec(ctx, `
		INSERT INTO leave_types (id, company_id, name, is_paid) VALUES ($1, $2, $3, $4)
	`, typeID, companyID, "Leave "+typeID[:8], paid)
	require.NoError(t, err)

	_, err = s.DB.Exec(ctx, `
		INSERT INTO leave_requests (id, employee_id, leave_type_id, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, 'approved')
	`, newID(), employeeID, typeID, from, to)
	require.NoError(t, err)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Close menutup koneksi database
func (s *TestDatabaseSetup) Close() {
	s.DB.Close()
}
