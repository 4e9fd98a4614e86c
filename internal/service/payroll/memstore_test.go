package payroll

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/audit"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/holiday"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/leave"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/events"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/shopspring/decimal"
)

// memStore backs every repository and feed the workflow reads, and rolls
// back to a snapshot when a transaction returns an error.
type memStore struct {
	lines  map[string]payroll.Line
	locks  []payroll.MonthLock
	audits []audit.Entry

	structures map[string]salary.Structure
	employees  []employee.Employee
	attendance []attendance.Day
	leaves     []leave.Day
	holidays   []holiday.Holiday

	createLineFn    func(line payroll.Line) error
	createLockFn    func(lock payroll.MonthLock) error
	listEmployeesFn func(ctx context.Context) error

	// monthAcquisitions records AcquireMonth keys in call order.
	monthAcquisitions []string
	inTx              bool

	commits   int
	rollbacks int
}

func newMemStore() *memStore {
	return &memStore{
		lines:      map[string]payroll.Line{},
		structures: map[string]salary.Structure{},
	}
}

// ========== TRANSACTOR ==========

func (m *memStore) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	lines := make(map[string]payroll.Line, len(m.lines))
	for k, v := range m.lines {
		lines[k] = v
	}
	locks := append([]payroll.MonthLock(nil), m.locks...)
	audits := append([]audit.Entry(nil), m.audits...)

	m.inTx = true
	err := fn(ctx)
	m.inTx = false
	if err != nil {
		m.lines = lines
		m.locks = locks
		m.audits = audits
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

// ========== LINES ==========

type memLines struct{ *memStore }

func (m memLines) List(ctx context.Context, companyID string, period payroll.Period, filter payroll.LineFilter) ([]payroll.Line, int64, error) {
	var out []payroll.Line
	for _, l := range m.lines {
		if l.CompanyID != companyID || l.Period != period {
			continue
		}
		if !filter.Scope.Contains(l.EmployeeID, l.BranchID, l.DepartmentID) {
			continue
		}
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })

	total := int64(len(out))
	if filter.Page > 0 && filter.Limit > 0 {
		start := (filter.Page - 1) * filter.Limit
		if start > len(out) {
			start = len(out)
		}
		end := start + filter.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (m memLines) GetByIDs(ctx context.Context, companyID string, period payroll.Period, ids []string, forUpdate bool) ([]payroll.Line, error) {
	var out []payroll.Line
	for _, id := range ids {
		if l, ok := m.lines[id]; ok && l.CompanyID == companyID && l.Period == period {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m memLines) Create(ctx context.Context, line payroll.Line) (payroll.Line, error) {
	if m.createLineFn != nil {
		if err := m.createLineFn(line); err != nil {
			return payroll.Line{}, err
		}
	}
	for _, l := range m.lines {
		if l.EmployeeID == line.EmployeeID && l.Period == line.Period {
			return payroll.Line{}, payroll.ErrLineAlreadyExists
		}
	}
	line.CreatedAt = time.Now()
	line.UpdatedAt = line.CreatedAt
	m.lines[line.ID] = line
	return line, nil
}

func (m memLines) UpdateComputation(ctx context.Context, line payroll.Line) error {
	existing, ok := m.lines[line.ID]
	if !ok || !existing.Status.IsRecomputable() {
		return payroll.ErrLineNotFound
	}
	line.CreatedAt = existing.CreatedAt
	line.UpdatedAt = time.Now()
	m.lines[line.ID] = line
	return nil
}

func (m memLines) MarkApproved(ctx context.Context, companyID string, ids []string, approvedBy string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		l, ok := m.lines[id]
		if !ok || l.CompanyID != companyID || !l.Status.IsApprovable() {
			continue
		}
		l.Status = payroll.LineStatusApproved
		l.ApprovedBy = &approvedBy
		approvedAt := at
		l.ApprovedAt = &approvedAt
		m.lines[id] = l
		n++
	}
	return n, nil
}

func (m memLines) MarkPaid(ctx context.Context, companyID string, period payroll.Period, details payroll.PaymentDetails) (int64, error) {
	var n int64
	for id, l := range m.lines {
		if l.CompanyID != companyID || l.Period != period || l.Status != payroll.LineStatusApproved {
			continue
		}
		l.Status = payroll.LineStatusPaid
		l.PaidBy = &details.PaidBy
		paidAt := details.PaidAt
		l.PaidAt = &paidAt
		method := details.PaymentMethod
		l.PaymentMethod = &method
		l.PaymentReference = details.PaymentReference
		m.lines[id] = l
		n++
	}
	return n, nil
}

func (m memLines) Summarize(ctx context.Context, companyID string, period payroll.Period, scope employee.Scope) (payroll.Summary, error) {
	lines, _, _ := m.List(ctx, companyID, period, payroll.LineFilter{Scope: scope})
	s := payroll.Summary{
		Counts:          map[payroll.LineStatus]int{},
		GrossSalary:     decimal.Zero,
		TotalDeductions: decimal.Zero,
		NetSalary:       decimal.Zero,
	}
	for _, l := range lines {
		s.Counts[l.Status]++
		s.GrossSalary = s.GrossSalary.Add(l.GrossSalary)
		s.TotalDeductions = s.TotalDeductions.Add(l.TotalDeductions)
		s.NetSalary = s.NetSalary.Add(l.NetSalary)
	}
	return s, nil
}

// ========== LOCKS ==========

type memLocks struct{ *memStore }

func (m memLocks) AcquireMonth(ctx context.Context, companyID string, period payroll.Period) error {
	if !m.inTx {
		return errors.New("month lock requires a transaction")
	}
	m.monthAcquisitions = append(m.monthAcquisitions, companyID+":"+period.String())
	return nil
}

func (m memLocks) GetLatest(ctx context.Context, companyID string, period payroll.Period) (payroll.MonthLock, error) {
	for i := len(m.locks) - 1; i >= 0; i-- {
		if m.locks[i].CompanyID == companyID && m.locks[i].Period == period {
			return m.locks[i], nil
		}
	}
	return payroll.MonthLock{}, payroll.ErrLockNotFound
}

func (m memLocks) Create(ctx context.Context, l payroll.MonthLock) (payroll.MonthLock, error) {
	if m.createLockFn != nil {
		if err := m.createLockFn(l); err != nil {
			return payroll.MonthLock{}, err
		}
	}
	for _, existing := range m.locks {
		if existing.CompanyID == l.CompanyID && existing.Period == l.Period && existing.IsActive() {
			return payroll.MonthLock{}, payroll.ErrConflict
		}
	}
	m.memStore.locks = append(m.memStore.locks, l)
	return l, nil
}

func (m memLocks) Release(ctx context.Context, companyID string, period payroll.Period, unlockedBy, reason string, at time.Time) (payroll.MonthLock, error) {
	for i := range m.locks {
		l := &m.locks[i]
		if l.CompanyID == companyID && l.Period == period && l.IsActive() {
			unlockedAt := at
			l.UnlockedAt = &unlockedAt
			l.UnlockedBy = &unlockedBy
			l.UnlockReason = &reason
			return *l, nil
		}
	}
	return payroll.MonthLock{}, payroll.ErrMonthNotLocked
}

func (m memLocks) ListByPeriod(ctx context.Context, companyID string, period payroll.Period) ([]payroll.MonthLock, error) {
	var out []payroll.MonthLock
	for i := len(m.locks) - 1; i >= 0; i-- {
		if m.locks[i].CompanyID == companyID && m.locks[i].Period == period {
			out = append(out, m.locks[i])
		}
	}
	return out, nil
}

// ========== AUDIT ==========

type memAudit struct{ *memStore }

func (m memAudit) Append(ctx context.Context, entry audit.Entry) error {
	m.memStore.audits = append(m.memStore.audits, entry)
	return nil
}

func (m memAudit) ListByEntity(ctx context.Context, companyID string, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	var out []audit.Entry
	for i := len(m.audits) - 1; i >= 0; i-- {
		e := m.audits[i]
		if e.CompanyID == companyID && e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) auditsFor(entityType audit.EntityType, action audit.Action) []audit.Entry {
	var out []audit.Entry
	for _, e := range m.audits {
		if e.EntityType == entityType && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// ========== SALARY AND FEEDS ==========

type memSalaries struct{ *memStore }

func (m memSalaries) GetCurrent(ctx context.Context, companyID, employeeID string, forUpdate bool) (salary.Structure, error) {
	s, ok := m.structures[employeeID]
	if !ok {
		return salary.Structure{}, salary.ErrSalaryStructureNotFound
	}
	return s, nil
}

func (m memSalaries) ListCurrent(ctx context.Context, companyID string, employeeIDs []string) (map[string]salary.Structure, error) {
	out := map[string]salary.Structure{}
	for _, id := range employeeIDs {
		if s, ok := m.structures[id]; ok && s.CompanyID == companyID {
			out[id] = s
		}
	}
	return out, nil
}

func (m memSalaries) Upsert(ctx context.Context, s salary.Structure) (salary.Structure, error) {
	m.structures[s.EmployeeID] = s
	return s, nil
}

func (m memSalaries) AppendHistory(ctx context.Context, h salary.History) error { return nil }

func (m memSalaries) ListHistory(ctx context.Context, companyID, employeeID string) ([]salary.History, error) {
	return nil, nil
}

type memFeeds struct{ *memStore }

func (m memFeeds) GetByID(ctx context.Context, id string, companyID string) (employee.Employee, error) {
	for _, e := range m.employees {
		if e.ID == id && e.CompanyID == companyID {
			return e, nil
		}
	}
	return employee.Employee{}, employee.ErrEmployeeNotFound
}

func (m memFeeds) ListActiveInScope(ctx context.Context, companyID string, scope employee.Scope) ([]employee.Employee, error) {
	if m.listEmployeesFn != nil {
		if err := m.listEmployeesFn(ctx); err != nil {
			return nil, err
		}
	}
	var out []employee.Employee
	for _, e := range m.employees {
		if e.CompanyID == companyID && e.EmploymentStatus == employee.EmploymentStatusActive && scope.Contains(e.ID, e.BranchID, e.DepartmentID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m memFeeds) ListClassifiedDays(ctx context.Context, companyID string, employeeIDs []string, from, to time.Time) ([]attendance.Day, error) {
	return m.attendance, nil
}

func (m memFeeds) ListApprovedDays(ctx context.Context, companyID string, employeeIDs []string, from, to time.Time) ([]leave.Day, error) {
	return m.leaves, nil
}

func (m memFeeds) ListHolidays(ctx context.Context, companyID string, from, to time.Time) ([]holiday.Holiday, error) {
	return m.holidays, nil
}

// ========== LOCKER AND PUBLISHER ==========

type fakeLocker struct {
	obtainFn func(ctx context.Context, key string) (lock.Lease, error)
	waitFn   func(ctx context.Context, key string) (lock.Lease, error)
	keys     []string
	waited   []string
}

func (f *fakeLocker) Obtain(ctx context.Context, key string) (lock.Lease, error) {
	f.keys = append(f.keys, key)
	if f.obtainFn != nil {
		return f.obtainFn(ctx, key)
	}
	return lock.NewNoopLocker().Obtain(ctx, key)
}

func (f *fakeLocker) Wait(ctx context.Context, key string) (lock.Lease, error) {
	f.keys = append(f.keys, key)
	f.waited = append(f.waited, key)
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return lock.NewNoopLocker().Wait(ctx, key)
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.EventType {
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
