package payroll

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/audit"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/events"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCompany = "0190f5a8-0000-7000-8000-000000000001"
	empAyu      = "0190f5a8-0000-7000-8000-0000000000e1"
	empBima     = "0190f5a8-0000-7000-8000-0000000000e2"
	empCitra    = "0190f5a8-0000-7000-8000-0000000000e3"
	branchJkt   = "0190f5a8-0000-7000-8000-0000000000b1"
	branchSby   = "0190f5a8-0000-7000-8000-0000000000b2"
)

// April 2026 has 30 days; tests run without weekend days so working days = 30.
var apr2026 = payroll.Period{Year: 2026, Month: 4}

type workflowFixture struct {
	store     *memStore
	svc       *PayrollServiceImpl
	locker    *fakeLocker
	publisher *recordingPublisher
	clock     time.Time
}

func newWorkflowFixture() *workflowFixture {
	store := newMemStore()
	jkt, sby := branchJkt, branchSby
	store.employees = []employee.Employee{
		{ID: empAyu, CompanyID: testCompany, BranchID: &jkt, EmployeeCode: "EMP-001", FullName: "Ayu", EmploymentStatus: employee.EmploymentStatusActive},
		{ID: empBima, CompanyID: testCompany, BranchID: &jkt, EmployeeCode: "EMP-002", FullName: "Bima", EmploymentStatus: employee.EmploymentStatusActive},
		{ID: empCitra, CompanyID: testCompany, BranchID: &sby, EmployeeCode: "EMP-003", FullName: "Citra", EmploymentStatus: employee.EmploymentStatusActive},
	}
	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.structures[empAyu] = salary.Structure{
		ID: "s-ayu", CompanyID: testCompany, EmployeeID: empAyu, EffectiveFrom: effective,
		Components: salary.Components{Basic: d("30000"), HousingAllowance: d("5000"), PFDeduction: d("1800"), TaxDeduction: d("1200")},
	}
	store.structures[empBima] = salary.Structure{
		ID: "s-bima", CompanyID: testCompany, EmployeeID: empBima, EffectiveFrom: effective,
		Components: salary.Components{Basic: d("20000"), Bonus: d("1000"), TaxDeduction: d("500")},
	}
	store.structures[empCitra] = salary.Structure{
		ID: "s-citra", CompanyID: testCompany, EmployeeID: empCitra, EffectiveFrom: effective,
		Components: salary.Components{Basic: d("15000")},
	}
	for day := 6; day <= 8; day++ {
		store.attendance = append(store.attendance, attendance.Day{
			EmployeeID: empAyu, Date: time.Date(2026, 4, day, 0, 0, 0, 0, time.UTC), Classification: attendance.ClassificationAbsent,
		})
	}

	f := &workflowFixture{
		store:     store,
		locker:    &fakeLocker{},
		publisher: &recordingPublisher{},
		clock:     time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewPayrollService(Dependencies{
		Transactor: store,
		Lines:      memLines{store},
		Locks:      memLocks{store},
		Salaries:   memSalaries{store},
		Directory:  memFeeds{store},
		Attendance: memFeeds{store},
		Leave:      memFeeds{store},
		Holidays:   memFeeds{store},
		Audit:      memAudit{store},
		Locker:     f.locker,
		Publisher:  f.publisher,
		Now:        func() time.Time { return f.clock },
	}).(*PayrollServiceImpl)
	return f
}

func owner() user.Actor {
	return user.NewActor("0190f5a8-0000-7000-8000-0000000000a1", testCompany, user.RoleOwner)
}

func manager() user.Actor {
	return user.NewActor("0190f5a8-0000-7000-8000-0000000000a2", testCompany, user.RoleManager)
}

func (f *workflowFixture) lineOf(employeeID string) payroll.Line {
	for _, l := range f.store.lines {
		if l.EmployeeID == employeeID && l.Period == apr2026 {
			return l
		}
	}
	return payroll.Line{}
}

func (f *workflowFixture) statuses() map[string]payroll.LineStatus {
	out := map[string]payroll.LineStatus{}
	for _, l := range f.store.lines {
		out[l.EmployeeID] = l.Status
	}
	return out
}

func (f *workflowFixture) generate(t *testing.T) payroll.GenerateResponse {
	t.Helper()
	resp, err := f.svc.Generate(context.Background(), manager(), payroll.GenerateRequest{Period: apr2026})
	require.NoError(t, err)
	return resp
}

func (f *workflowFixture) approveAll(t *testing.T) payroll.ApproveResponse {
	t.Helper()
	var ids []string
	for id := range f.store.lines {
		ids = append(ids, id)
	}
	resp, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: ids})
	require.NoError(t, err)
	return resp
}

func payRequest() payroll.PayRequest {
	ref := "BATCH-2026-04"
	return payroll.PayRequest{Period: apr2026, PaymentMethod: "bank_transfer", PaymentReference: &ref, ConfirmLock: true}
}

// ========== PREVIEW ==========

func TestPreview_ComputesRowsWithoutWriting(t *testing.T) {
	f := newWorkflowFixture()

	resp, err := f.svc.Preview(context.Background(), manager(), payroll.PreviewRequest{Period: apr2026})
	require.NoError(t, err)

	require.Len(t, resp.Rows, 3)
	ayu := resp.Rows[0]
	assert.Equal(t, empAyu, ayu.EmployeeID)
	assert.Equal(t, "30", ayu.WorkingDays.String())
	assert.Equal(t, "3", ayu.AttendanceLOPDays.String())
	assert.Equal(t, "31500.00", ayu.GrossSalary.StringFixed(2))
	assert.Equal(t, "3000.00", ayu.TotalDeductions.StringFixed(2))
	assert.Equal(t, "28500.00", ayu.NetSalary.StringFixed(2))
	assert.Nil(t, ayu.Error)

	assert.True(t, resp.MonthComplete)
	assert.Empty(t, resp.Warnings)
	assert.False(t, resp.Locked)
	assert.Equal(t, 3, resp.Totals.PayableEmployees)

	assert.Empty(t, f.store.lines)
	assert.Empty(t, f.store.audits)
	assert.Zero(t, f.store.commits)
	assert.Empty(t, f.locker.keys, "preview takes no locks")
}

func TestPreview_MissingStructureRow(t *testing.T) {
	f := newWorkflowFixture()
	delete(f.store.structures, empCitra)

	resp, err := f.svc.Preview(context.Background(), manager(), payroll.PreviewRequest{Period: apr2026})
	require.NoError(t, err)

	citra := resp.Rows[2]
	require.NotNil(t, citra.Error)
	assert.Equal(t, "missing structure", *citra.Error)
	assert.True(t, citra.GrossSalary.IsZero())
	assert.True(t, citra.NetSalary.IsZero())

	assert.Equal(t, 3, resp.Totals.Employees)
	assert.Equal(t, 2, resp.Totals.PayableEmployees)
	assert.Equal(t, 1, resp.Totals.EmployeesWithErrors)
	// 31500 + 21000 (Bima, with bonus)
	assert.Equal(t, "52500.00", resp.Totals.GrossSalary.StringFixed(2))
}

func TestPreview_MonthStillOpen(t *testing.T) {
	f := newWorkflowFixture()
	f.clock = time.Date(2026, 4, 15, 8, 0, 0, 0, time.UTC)

	resp, err := f.svc.Preview(context.Background(), manager(), payroll.PreviewRequest{Period: apr2026})
	require.NoError(t, err)

	assert.False(t, resp.MonthComplete)
	assert.Contains(t, resp.Warnings, payroll.WarningMonthOpen)
}

func TestPreview_ScopeAndLockedFlag(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	f.approveAll(t)
	_, err := f.svc.PayAndClose(context.Background(), owner(), payRequest())
	require.NoError(t, err)

	sby := branchSby
	resp, err := f.svc.Preview(context.Background(), manager(), payroll.PreviewRequest{Period: apr2026, Scope: employee.Scope{BranchID: &sby}})
	require.NoError(t, err)

	assert.True(t, resp.Locked)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, empCitra, resp.Rows[0].EmployeeID)
	require.NotNil(t, resp.Rows[0].ExistingStatus)
	assert.Equal(t, payroll.LineStatusPaid, *resp.Rows[0].ExistingStatus)
}

func TestPreview_SharedComputationSurvivesCallerCancel(t *testing.T) {
	f := newWorkflowFixture()
	req := payroll.PreviewRequest{Period: apr2026}

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	f.store.listEmployeesFn = func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.Preview(ctxA, manager(), req)
		errA <- err
	}()
	<-started

	type result struct {
		resp payroll.PreviewResponse
		err  error
	}
	doneB := make(chan result, 1)
	go func() {
		resp, err := f.svc.Preview(context.Background(), manager(), req)
		doneB <- result{resp, err}
	}()
	// Let the second caller join the in-flight computation.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-doneB
	require.NoError(t, b.err)
	assert.Len(t, b.resp.Rows, 3)
}

// ========== GENERATE ==========

func TestGenerate_CreatesLinesWithSnapshot(t *testing.T) {
	f := newWorkflowFixture()

	resp := f.generate(t)

	assert.Equal(t, 3, resp.Created)
	assert.Equal(t, 0, resp.Updated)
	assert.Equal(t, payroll.HeaderStatusGenerated, resp.HeaderStatus)
	require.Len(t, f.store.lines, 3)

	ayu := f.lineOf(empAyu)
	assert.Equal(t, payroll.LineStatusGenerated, ayu.Status)
	assert.Equal(t, "28500.00", ayu.NetSalary.StringFixed(2))
	assert.True(t, ayu.Structure.Basic.Equal(d("30000")))
	require.NotNil(t, ayu.GeneratedBy)
	assert.Equal(t, manager().UserID, *ayu.GeneratedBy)
	require.NotNil(t, ayu.BranchID)
	assert.Equal(t, branchJkt, *ayu.BranchID)

	assert.Len(t, f.store.auditsFor(audit.EntityPayrollMonth, audit.ActionGenerate), 1)
	assert.Equal(t, []string{"payroll:month:" + testCompany + ":2026-04"}, f.locker.keys)
}

func TestGenerate_IsIdempotent(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	first := f.lineOf(empAyu)

	resp := f.generate(t)

	assert.Equal(t, 0, resp.Created)
	assert.Equal(t, 3, resp.Updated)
	require.Len(t, f.store.lines, 3)

	second := f.lineOf(empAyu)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.GrossSalary.Equal(second.GrossSalary))
	assert.True(t, first.NetSalary.Equal(second.NetSalary))
	assert.True(t, first.PayableDays.Equal(second.PayableDays))
}

func TestGenerate_NeverTouchesApprovedLines(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)

	ayu := f.lineOf(empAyu)
	_, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{ayu.ID}})
	require.NoError(t, err)
	approved := f.lineOf(empAyu)

	// A later structure edit must not leak into the approved line.
	s := f.store.structures[empAyu]
	s.Components.Basic = d("99999")
	f.store.structures[empAyu] = s

	resp := f.generate(t)

	assert.Equal(t, 1, resp.SkippedApproved)
	assert.Equal(t, 2, resp.Updated)
	assert.Equal(t, approved, f.lineOf(empAyu))
}

func TestGenerate_FailedLinesAndRecovery(t *testing.T) {
	f := newWorkflowFixture()
	citra := f.store.structures[empCitra]
	delete(f.store.structures, empCitra)

	resp := f.generate(t)
	assert.Equal(t, 3, resp.Created)
	assert.Equal(t, 1, resp.Failed)

	failed := f.lineOf(empCitra)
	assert.Equal(t, payroll.LineStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "missing structure", *failed.ErrorMessage)
	assert.True(t, failed.NetSalary.IsZero())

	f.store.structures[empCitra] = citra
	resp = f.generate(t)
	assert.Equal(t, 0, resp.Failed)

	recovered := f.lineOf(empCitra)
	assert.Equal(t, failed.ID, recovered.ID)
	assert.Equal(t, payroll.LineStatusGenerated, recovered.Status)
	assert.Nil(t, recovered.ErrorMessage)
	assert.Equal(t, "15000.00", recovered.NetSalary.StringFixed(2))
}

func TestGenerate_StructureNotYetEffective(t *testing.T) {
	f := newWorkflowFixture()
	s := f.store.structures[empBima]
	s.EffectiveFrom = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f.store.structures[empBima] = s

	resp := f.generate(t)

	assert.Equal(t, 1, resp.Failed)
	line := f.lineOf(empBima)
	require.NotNil(t, line.ErrorMessage)
	assert.Equal(t, "structure not yet effective", *line.ErrorMessage)
}

func TestGenerate_ConflictingInsertRoutesToUpdate(t *testing.T) {
	f := newWorkflowFixture()

	// Simulate a concurrent generate that inserts Bima's line first.
	f.store.createLineFn = func(line payroll.Line) error {
		if line.EmployeeID != empBima {
			return nil
		}
		f.store.createLineFn = nil
		racer := line
		racer.ID = "racer-line"
		racer.Status = payroll.LineStatusGenerated
		f.store.lines[racer.ID] = racer
		return payroll.ErrLineAlreadyExists
	}

	resp := f.generate(t)

	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 1, resp.Updated)
	require.Len(t, f.store.lines, 3)
	assert.Equal(t, "racer-line", f.lineOf(empBima).ID)
}

func TestGenerate_ScopeLimitsEmployees(t *testing.T) {
	f := newWorkflowFixture()

	resp, err := f.svc.Generate(context.Background(), manager(), payroll.GenerateRequest{
		Period: apr2026,
		Scope:  employee.Scope{EmployeeIDs: []string{empBima}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Created)
	require.Len(t, f.store.lines, 1)
	assert.Equal(t, empBima, f.lineOf(empBima).EmployeeID)
}

// ========== APPROVE ==========

func TestApproveBatch_PerIDResults(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	ayu, bima, citra := f.lineOf(empAyu), f.lineOf(empBima), f.lineOf(empCitra)

	// Citra is reset to draft by hand to exercise the invalid status path.
	citra.Status = payroll.LineStatusDraft
	f.store.lines[citra.ID] = citra

	_, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{bima.ID}})
	require.NoError(t, err)

	jkt := branchJkt
	resp, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{
		Period:  apr2026,
		Scope:   employee.Scope{BranchID: &jkt},
		LineIDs: []string{ayu.ID, bima.ID, citra.ID, "missing", ayu.ID},
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 5)
	assert.Equal(t, payroll.ApproveOutcomeApproved, resp.Results[0].Outcome)
	assert.Equal(t, payroll.ApproveOutcomeSkipped, resp.Results[1].Outcome)
	// Citra is in another branch, so outside the scope.
	assert.Equal(t, payroll.ApproveOutcomeNotFound, resp.Results[2].Outcome)
	assert.Equal(t, payroll.ApproveOutcomeNotFound, resp.Results[3].Outcome)
	assert.Equal(t, payroll.ApproveOutcomeSkipped, resp.Results[4].Outcome)
	assert.Equal(t, 1, resp.Approved)

	assert.Equal(t, payroll.LineStatusApproved, f.lineOf(empAyu).Status)
	assert.Equal(t, payroll.LineStatusDraft, f.lineOf(empCitra).Status)
	assert.Len(t, f.store.auditsFor(audit.EntityPayrollLine, audit.ActionApprove), 2)

	resp, err = f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{citra.ID}})
	require.NoError(t, err)
	assert.Equal(t, payroll.ApproveOutcomeInvalidStatus, resp.Results[0].Outcome)
	require.NotNil(t, resp.Results[0].Status)
	assert.Equal(t, payroll.LineStatusDraft, *resp.Results[0].Status)

	assert.Equal(t, []events.EventType{events.PayrollLinesApproved, events.PayrollLinesApproved}, f.publisher.types())
}

func TestApproveBatch_FailedLineIsApprovable(t *testing.T) {
	f := newWorkflowFixture()
	delete(f.store.structures, empCitra)
	f.generate(t)

	citra := f.lineOf(empCitra)
	require.Equal(t, payroll.LineStatusFailed, citra.Status)

	resp, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{citra.ID}})
	require.NoError(t, err)
	assert.Equal(t, payroll.ApproveOutcomeApproved, resp.Results[0].Outcome)
}

func TestApproveBatch_LineOfOtherMonthIsNotFound(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	ayu := f.lineOf(empAyu)

	resp, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{
		Period:  payroll.Period{Year: 2026, Month: 3},
		LineIDs: []string{ayu.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, payroll.ApproveOutcomeNotFound, resp.Results[0].Outcome)
	assert.Equal(t, payroll.LineStatusGenerated, f.lineOf(empAyu).Status)
}

// ========== PAY AND CLOSE ==========

func TestPayAndClose_PreconditionFailedMutatesNothing(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	ayu, bima := f.lineOf(empAyu), f.lineOf(empBima)
	_, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{ayu.ID, bima.ID}})
	require.NoError(t, err)
	before := f.statuses()
	auditsBefore := len(f.store.audits)

	_, err = f.svc.PayAndClose(context.Background(), owner(), payRequest())

	require.ErrorIs(t, err, payroll.ErrPreconditionFailed)
	var perr *payroll.PreconditionError
	require.True(t, errors.As(err, &perr))
	require.Len(t, perr.Lines, 1)
	assert.Equal(t, empCitra, perr.Lines[0].EmployeeID)
	assert.Equal(t, payroll.LineStatusGenerated, perr.Lines[0].Status)

	assert.Equal(t, before, f.statuses())
	assert.Empty(t, f.store.locks)
	assert.Len(t, f.store.audits, auditsBefore)
}

func TestPayAndClose_ZeroLinesCannotBePaid(t *testing.T) {
	f := newWorkflowFixture()

	_, err := f.svc.PayAndClose(context.Background(), owner(), payRequest())

	assert.ErrorIs(t, err, payroll.ErrPreconditionFailed)
	assert.Empty(t, f.store.locks)
}

func TestPayAndClose_RequiresConfirmLock(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	f.approveAll(t)

	req := payRequest()
	req.ConfirmLock = false
	_, err := f.svc.PayAndClose(context.Background(), owner(), req)

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs.ToMap(), "confirm_lock")
	assert.Empty(t, f.store.locks)
}

func TestPayAndClose_PaysAndLocksMonth(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	f.approveAll(t)

	resp, err := f.svc.PayAndClose(context.Background(), owner(), payRequest())
	require.NoError(t, err)

	assert.Equal(t, 3, resp.PaidCount)
	assert.True(t, resp.Lock.Active)
	for _, status := range f.statuses() {
		assert.Equal(t, payroll.LineStatusPaid, status)
	}
	ayu := f.lineOf(empAyu)
	require.NotNil(t, ayu.PaymentMethod)
	assert.Equal(t, "bank_transfer", *ayu.PaymentMethod)
	require.NotNil(t, ayu.PaymentReference)
	assert.Equal(t, "BATCH-2026-04", *ayu.PaymentReference)

	require.Len(t, f.store.locks, 1)
	assert.Contains(t, f.publisher.types(), events.PayrollMonthPaid)

	ctx := context.Background()
	_, err = f.svc.Generate(ctx, manager(), payroll.GenerateRequest{Period: apr2026})
	assert.ErrorIs(t, err, payroll.ErrMonthLocked)
	_, err = f.svc.ApproveBatch(ctx, manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{ayu.ID}})
	assert.ErrorIs(t, err, payroll.ErrMonthLocked)
	_, err = f.svc.PayAndClose(ctx, owner(), payRequest())
	assert.ErrorIs(t, err, payroll.ErrMonthLocked)

	// Other months stay open.
	_, err = f.svc.Generate(ctx, manager(), payroll.GenerateRequest{Period: payroll.Period{Year: 2026, Month: 5}})
	assert.NoError(t, err)
}

func TestPayAndClose_LockConflictRollsBack(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	f.approveAll(t)

	// The competing request committed its lock row between our checks and insert.
	f.store.createLockFn = func(payroll.MonthLock) error { return payroll.ErrConflict }

	_, err := f.svc.PayAndClose(context.Background(), owner(), payRequest())

	assert.ErrorIs(t, err, payroll.ErrConflict)
	for _, status := range f.statuses() {
		assert.Equal(t, payroll.LineStatusApproved, status)
	}
	assert.Empty(t, f.store.locks)
	assert.NotContains(t, f.publisher.types(), events.PayrollMonthPaid)
}

func TestPayAndClose_SecondCallLoses(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	f.approveAll(t)

	_, err := f.svc.PayAndClose(context.Background(), owner(), payRequest())
	require.NoError(t, err)

	_, err = f.svc.PayAndClose(context.Background(), owner(), payRequest())
	assert.True(t, errors.Is(err, payroll.ErrMonthLocked) || errors.Is(err, payroll.ErrConflict))
	assert.Len(t, f.store.locks, 1)
}

func TestPayAndClose_MonthMutexHeld(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)
	f.approveAll(t)
	f.locker.obtainFn = func(ctx context.Context, key string) (lock.Lease, error) {
		return nil, lock.ErrNotObtained
	}

	_, err := f.svc.PayAndClose(context.Background(), owner(), payRequest())

	assert.ErrorIs(t, err, payroll.ErrConflict)
	assert.Empty(t, f.store.locks)
}

func TestGenerate_WaitsForHeldMonthMutex(t *testing.T) {
	f := newWorkflowFixture()
	// A concurrent request holds the month; Obtain would fail fast.
	f.locker.obtainFn = func(ctx context.Context, key string) (lock.Lease, error) {
		return nil, lock.ErrNotObtained
	}
	f.locker.waitFn = func(ctx context.Context, key string) (lock.Lease, error) {
		// The holder finished while we were retrying.
		return lock.NewNoopLocker().Obtain(ctx, key)
	}

	resp, err := f.svc.Generate(context.Background(), manager(), payroll.GenerateRequest{Period: apr2026})

	require.NoError(t, err)
	assert.Equal(t, 3, resp.Created)
	assert.Equal(t, []string{"payroll:month:" + testCompany + ":2026-04"}, f.locker.waited)

	approved, err := f.svc.ApproveBatch(context.Background(), manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{f.lineOf(empAyu).ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, approved.Approved)
	assert.Len(t, f.locker.waited, 2)
}

func TestGenerate_MonthMutexWaitTimesOut(t *testing.T) {
	f := newWorkflowFixture()
	f.locker.waitFn = func(ctx context.Context, key string) (lock.Lease, error) {
		return nil, lock.ErrNotObtained
	}

	_, err := f.svc.Generate(context.Background(), manager(), payroll.GenerateRequest{Period: apr2026})

	assert.ErrorIs(t, err, payroll.ErrConflict)
	assert.Empty(t, f.store.lines)
}

func TestMutations_TakeMonthLockInsideTransaction(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	key := testCompany + ":2026-04"

	f.generate(t)
	assert.Equal(t, []string{key}, f.store.monthAcquisitions)

	f.approveAll(t)
	assert.Len(t, f.store.monthAcquisitions, 2)

	_, err := f.svc.PayAndClose(ctx, owner(), payRequest())
	require.NoError(t, err)
	assert.Len(t, f.store.monthAcquisitions, 3)

	_, err = f.svc.Unlock(ctx, owner(), payroll.UnlockRequest{Period: apr2026, Reason: "recount"})
	require.NoError(t, err)
	assert.Equal(t, []string{key, key, key, key}, f.store.monthAcquisitions)

	_, err = f.svc.Preview(ctx, manager(), payroll.PreviewRequest{Period: apr2026})
	require.NoError(t, err)
	assert.Len(t, f.store.monthAcquisitions, 4, "preview does not lock the month")
}

// ========== UNLOCK ==========

func TestUnlock(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	f.generate(t)
	f.approveAll(t)
	_, err := f.svc.PayAndClose(ctx, owner(), payRequest())
	require.NoError(t, err)

	t.Run("manager cannot unlock", func(t *testing.T) {
		_, err := f.svc.Unlock(ctx, manager(), payroll.UnlockRequest{Period: apr2026, Reason: "fix"})
		assert.ErrorIs(t, err, payroll.ErrForbidden)
	})

	t.Run("reason is required", func(t *testing.T) {
		_, err := f.svc.Unlock(ctx, owner(), payroll.UnlockRequest{Period: apr2026, Reason: "  "})
		var verrs validator.ValidationErrors
		assert.True(t, errors.As(err, &verrs))
		assert.True(t, f.store.locks[0].IsActive())
	})

	t.Run("unlock keeps paid lines", func(t *testing.T) {
		reason := "Bonus for EMP-002 was entered twice"
		resp, err := f.svc.Unlock(ctx, owner(), payroll.UnlockRequest{Period: apr2026, Reason: reason})
		require.NoError(t, err)

		assert.False(t, resp.Lock.Active)
		require.NotNil(t, resp.Lock.UnlockReason)
		assert.Equal(t, reason, *resp.Lock.UnlockReason)
		for _, status := range f.statuses() {
			assert.Equal(t, payroll.LineStatusPaid, status)
		}

		entries := f.store.auditsFor(audit.EntityPayrollMonth, audit.ActionUnlock)
		require.Len(t, entries, 1)
		assert.Equal(t, reason, entries[0].Metadata["reason"])
		assert.Contains(t, f.publisher.types(), events.PayrollMonthUnlocked)
	})

	t.Run("month is writable again", func(t *testing.T) {
		resp, err := f.svc.Generate(ctx, manager(), payroll.GenerateRequest{Period: apr2026})
		require.NoError(t, err)
		assert.Equal(t, 3, resp.SkippedApproved)
		assert.Equal(t, payroll.HeaderStatusPaid, resp.HeaderStatus)
	})

	t.Run("second unlock has nothing to release", func(t *testing.T) {
		_, err := f.svc.Unlock(ctx, owner(), payroll.UnlockRequest{Period: apr2026, Reason: "again"})
		assert.ErrorIs(t, err, payroll.ErrMonthNotLocked)
	})
}

func TestUnlock_ThenRepayCorrectedLines(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	delete(f.store.structures, empCitra)
	f.generate(t)
	f.approveAll(t)
	_, err := f.svc.PayAndClose(ctx, owner(), payRequest())
	require.NoError(t, err)

	_, err = f.svc.Unlock(ctx, owner(), payroll.UnlockRequest{Period: apr2026, Reason: "Citra was paid zero"})
	require.NoError(t, err)

	// Paid lines are final; a second pay with everything paid just re-locks.
	resp, err := f.svc.PayAndClose(ctx, owner(), payRequest())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.PaidCount)
	assert.Equal(t, 3, resp.AlreadyPaid)
	assert.Len(t, f.store.locks, 2)

	history, err := f.svc.GetMonthHistory(ctx, manager(), apr2026)
	require.NoError(t, err)
	require.Len(t, history.Locks, 2)
	assert.True(t, history.Locks[0].Active)
	assert.False(t, history.Locks[1].Active)
	assert.Equal(t, audit.ActionPay, history.Events[0].Action)
}

// ========== PERMISSIONS ==========

func TestWorkflow_Forbidden(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	emp := user.NewActor("0190f5a8-0000-7000-8000-0000000000c1", testCompany, user.RoleEmployee)

	_, err := f.svc.Preview(ctx, emp, payroll.PreviewRequest{Period: apr2026})
	assert.ErrorIs(t, err, payroll.ErrForbidden)
	_, err = f.svc.Generate(ctx, emp, payroll.GenerateRequest{Period: apr2026})
	assert.ErrorIs(t, err, payroll.ErrForbidden)
	_, err = f.svc.ApproveBatch(ctx, emp, payroll.ApproveRequest{Period: apr2026, LineIDs: []string{"x"}})
	assert.ErrorIs(t, err, payroll.ErrForbidden)
	_, err = f.svc.PayAndClose(ctx, manager(), payRequest())
	assert.ErrorIs(t, err, payroll.ErrForbidden)
	_, err = f.svc.GetOverview(ctx, emp, payroll.OverviewRequest{Period: apr2026})
	assert.ErrorIs(t, err, payroll.ErrForbidden)

	assert.Empty(t, f.store.lines)
}

// ========== READS ==========

func TestGetOverview(t *testing.T) {
	f := newWorkflowFixture()
	ctx := context.Background()
	f.generate(t)
	ayu := f.lineOf(empAyu)
	_, err := f.svc.ApproveBatch(ctx, manager(), payroll.ApproveRequest{Period: apr2026, LineIDs: []string{ayu.ID}})
	require.NoError(t, err)

	resp, err := f.svc.GetOverview(ctx, manager(), payroll.OverviewRequest{Period: apr2026, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, payroll.HeaderStatusGenerated, resp.Header.Status)
	assert.Equal(t, 3, resp.Header.TotalLines)
	assert.Equal(t, 1, resp.Header.Counts.Approved)
	assert.Equal(t, 2, resp.Header.Counts.Generated)
	assert.False(t, resp.Header.Locked)
	// 28500 + 20500 + 15000
	assert.Equal(t, "64000.00", resp.Header.NetSalary.StringFixed(2))
	assert.Len(t, resp.Lines, 2)
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 2, resp.TotalPages)

	approved := payroll.LineStatusApproved
	resp, err = f.svc.GetOverview(ctx, manager(), payroll.OverviewRequest{Period: apr2026, Status: &approved})
	require.NoError(t, err)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, empAyu, resp.Lines[0].EmployeeID)
}

func TestGetOverview_EmptyMonthIsDraft(t *testing.T) {
	f := newWorkflowFixture()

	resp, err := f.svc.GetOverview(context.Background(), manager(), payroll.OverviewRequest{Period: apr2026})
	require.NoError(t, err)

	assert.Equal(t, payroll.HeaderStatusDraft, resp.Header.Status)
	assert.Empty(t, resp.Lines)
}

func TestExportRegister(t *testing.T) {
	f := newWorkflowFixture()
	f.generate(t)

	var buf bytes.Buffer
	err := f.svc.ExportRegister(context.Background(), manager(), payroll.OverviewRequest{Period: apr2026}, &buf)
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}
