package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/audit"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/holiday"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/leave"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/events"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// previewTimeout bounds a shared preview computation, which outlives the
// cancellation of any single caller.
const previewTimeout = 30 * time.Second

// Dependencies wires the workflow to its stores and upstream feeds.
type Dependencies struct {
	Transactor database.Transactor
	Lines      payroll.LineRepository
	Locks      payroll.LockRepository
	Salaries   salary.SalaryRepository
	Directory  employee.Directory
	Attendance attendance.Feed
	Leave      leave.Feed
	Holidays   holiday.Calendar
	Audit      audit.Recorder

	// Optional. A nil Locker or Publisher falls back to a no-op.
	Locker    lock.Locker
	Publisher events.Publisher

	WeekendDays []time.Weekday
	Now         func() time.Time
}

type PayrollServiceImpl struct {
	tx         database.Transactor
	lineRepo   payroll.LineRepository
	lockRepo   payroll.LockRepository
	salaryRepo salary.SalaryRepository
	directory  employee.Directory
	attendance attendance.Feed
	leave      leave.Feed
	holidays   holiday.Calendar
	audit      audit.Recorder
	locker     lock.Locker
	publisher  events.Publisher

	calculator *Calculator
	aggregator *Aggregator
	now        func() time.Time

	previews singleflight.Group
}

func NewPayrollService(deps Dependencies) payroll.PayrollService {
	svc := &PayrollServiceImpl{
		tx:         deps.Transactor,
		lineRepo:   deps.Lines,
		lockRepo:   deps.Locks,
		salaryRepo: deps.Salaries,
		directory:  deps.Directory,
		attendance: deps.Attendance,
		leave:      deps.Leave,
		holidays:   deps.Holidays,
		audit:      deps.Audit,
		locker:     deps.Locker,
		publisher:  deps.Publisher,
		calculator: NewCalculator(),
		aggregator: NewAggregator(deps.WeekendDays),
		now:        deps.Now,
	}
	if svc.locker == nil {
		svc.locker = lock.NewNoopLocker()
	}
	if svc.publisher == nil {
		svc.publisher = events.NewNoopPublisher()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

func authorize(actor user.Actor, allowed bool) error {
	if actor.CompanyID == "" || actor.UserID == "" || !allowed {
		return payroll.ErrForbidden
	}
	return nil
}

func monthKey(companyID string, period payroll.Period) string {
	return fmt.Sprintf("payroll:month:%s:%s", companyID, period)
}

type obtainFunc func(ctx context.Context, key string) (lock.Lease, error)

// withMonthMutex serializes mutations of one month across instances. obtain
// is either the locker's Obtain or its Wait; a month that stays held is
// reported as a conflict.
func (s *PayrollServiceImpl) withMonthMutex(ctx context.Context, obtain obtainFunc, companyID string, period payroll.Period, fn func() error) error {
	lease, err := obtain(ctx, monthKey(companyID, period))
	if errors.Is(err, lock.ErrNotObtained) {
		return payroll.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to obtain month mutex: %w", err)
	}
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			slog.Warn("Failed to release payroll month mutex", "company_id", companyID, "period", period.String(), "error", relErr)
		}
	}()
	return fn()
}

func (s *PayrollServiceImpl) isLocked(ctx context.Context, companyID string, period payroll.Period) (*payroll.MonthLock, error) {
	latest, err := s.lockRepo.GetLatest(ctx, companyID, period)
	if errors.Is(err, payroll.ErrLockNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read month lock: %w", err)
	}
	if !latest.IsActive() {
		return nil, nil
	}
	return &latest, nil
}

func (s *PayrollServiceImpl) ensureUnlocked(ctx context.Context, companyID string, period payroll.Period) error {
	active, err := s.isLocked(ctx, companyID, period)
	if err != nil {
		return err
	}
	if active != nil {
		return payroll.ErrMonthLocked
	}
	return nil
}

func (s *PayrollServiceImpl) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		slog.Error("Failed to publish payroll event", "event_type", event.Type, "company_id", event.CompanyID, "period", event.Period, "error", err)
	}
}

// ========== INPUTS ==========

type batchInputs struct {
	employees  []employee.Employee
	structures map[string]salary.Structure
	attendance map[string][]attendance.Day
	leave      map[string][]leave.Day
	holidays   []holiday.Holiday
}

// loadInputs reads everything a batch needs. Reads run concurrently on the
// pool, outside any transaction.
func (s *PayrollServiceImpl) loadInputs(ctx context.Context, companyID string, period payroll.Period, scope employee.Scope) (batchInputs, error) {
	employees, err := s.directory.ListActiveInScope(ctx, companyID, scope)
	if err != nil {
		return batchInputs{}, fmt.Errorf("failed to list employees: %w", err)
	}

	in := batchInputs{
		employees:  employees,
		structures: map[string]salary.Structure{},
		attendance: map[string][]attendance.Day{},
		leave:      map[string][]leave.Day{},
	}
	if len(employees) == 0 {
		return in, nil
	}

	ids := make([]string, 0, len(employees))
	for _, emp := range employees {
		ids = append(ids, emp.ID)
	}
	from, to := period.Start(), period.End()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		structures, err := s.salaryRepo.ListCurrent(gctx, companyID, ids)
		if err != nil {
			return fmt.Errorf("failed to load salary structures: %w", err)
		}
		in.structures = structures
		return nil
	})
	g.Go(func() error {
		days, err := s.attendance.ListClassifiedDays(gctx, companyID, ids, from, to)
		if err != nil {
			return fmt.Errorf("failed to load attendance: %w", err)
		}
		for _, d := range days {
			in.attendance[d.EmployeeID] = append(in.attendance[d.EmployeeID], d)
		}
		return nil
	})
	g.Go(func() error {
		days, err := s.leave.ListApprovedDays(gctx, companyID, ids, from, to)
		if err != nil {
			return fmt.Errorf("failed to load leave: %w", err)
		}
		for _, d := range days {
			in.leave[d.EmployeeID] = append(in.leave[d.EmployeeID], d)
		}
		return nil
	})
	g.Go(func() error {
		holidays, err := s.holidays.ListHolidays(gctx, companyID, from, to)
		if err != nil {
			return fmt.Errorf("failed to load holidays: %w", err)
		}
		in.holidays = holidays
		return nil
	})
	if err := g.Wait(); err != nil {
		return batchInputs{}, err
	}

	return in, nil
}

func (s *PayrollServiceImpl) compute(period payroll.Period, emp employee.Employee, in batchInputs, today time.Time) (payroll.Computation, payroll.DayAggregate, error) {
	agg := s.aggregator.Aggregate(period, emp.ID, AggregatorInput{
		Attendance: in.attendance[emp.ID],
		Leave:      in.leave[emp.ID],
		Holidays:   in.holidays,
		Today:      today,
	})

	var structure *salary.Structure
	if st, ok := in.structures[emp.ID]; ok {
		structure = &st
	}

	out, err := s.calculator.Compute(period, structure, agg)
	return out, agg, err
}

// ========== PREVIEW ==========

func (s *PayrollServiceImpl) Preview(ctx context.Context, actor user.Actor, req payroll.PreviewRequest) (payroll.PreviewResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanView); err != nil {
		return payroll.PreviewResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.PreviewResponse{}, err
	}

	scopeKey, err := json.Marshal(req.Scope)
	if err != nil {
		return payroll.PreviewResponse{}, fmt.Errorf("failed to encode scope: %w", err)
	}
	key := actor.CompanyID + "|" + req.Period.String() + "|" + string(scopeKey)

	ch := s.previews.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), previewTimeout)
		defer cancel()
		return s.preview(sharedCtx, actor.CompanyID, req)
	})
	select {
	case <-ctx.Done():
		return payroll.PreviewResponse{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return payroll.PreviewResponse{}, res.Err
		}
		return res.Val.(payroll.PreviewResponse), nil
	}
}

func (s *PayrollServiceImpl) preview(ctx context.Context, companyID string, req payroll.PreviewRequest) (payroll.PreviewResponse, error) {
	in, err := s.loadInputs(ctx, companyID, req.Period, req.Scope)
	if err != nil {
		return payroll.PreviewResponse{}, err
	}

	active, err := s.isLocked(ctx, companyID, req.Period)
	if err != nil {
		return payroll.PreviewResponse{}, err
	}

	existing, _, err := s.lineRepo.List(ctx, companyID, req.Period, payroll.LineFilter{Scope: req.Scope})
	if err != nil {
		return payroll.PreviewResponse{}, fmt.Errorf("failed to list payroll lines: %w", err)
	}
	statusByEmployee := make(map[string]payroll.LineStatus, len(existing))
	for _, l := range existing {
		statusByEmployee[l.EmployeeID] = l.Status
	}

	today := s.now()
	resp := payroll.PreviewResponse{
		Period:        req.Period.String(),
		Locked:        active != nil,
		MonthComplete: dateOnly(today).After(req.Period.End()),
		Warnings:      []string{},
		Rows:          make([]payroll.PreviewRow, 0, len(in.employees)),
		Totals: payroll.PreviewTotals{
			GrossSalary:     decimal.Zero,
			TotalDeductions: decimal.Zero,
			NetSalary:       decimal.Zero,
		},
	}
	if !resp.MonthComplete {
		resp.Warnings = append(resp.Warnings, payroll.WarningMonthOpen)
	}

	for _, emp := range in.employees {
		out, agg, calcErr := s.compute(req.Period, emp, in, today)

		row := payroll.PreviewRow{
			EmployeeID:        emp.ID,
			EmployeeCode:      emp.EmployeeCode,
			EmployeeName:      emp.FullName,
			WorkingDays:       agg.WorkingDays,
			AttendanceLOPDays: agg.AttendanceLOPDays,
			UnpaidLeaveDays:   agg.UnpaidLeaveDays,
			PaidLeaveDays:     agg.PaidLeaveDays,
			LOPDays:           agg.AttendanceLOPDays.Add(agg.UnpaidLeaveDays),
			PayableDays:       decimal.Zero,
			GrossSalary:       decimal.Zero,
			TotalDeductions:   decimal.Zero,
			NetSalary:         decimal.Zero,
		}
		if status, ok := statusByEmployee[emp.ID]; ok {
			row.ExistingStatus = &status
		}

		resp.Totals.Employees++
		if calcErr != nil {
			msg := calcErr.Error()
			row.Error = &msg
			resp.Totals.EmployeesWithErrors++
			resp.Rows = append(resp.Rows, row)
			continue
		}

		row.PayableDays = out.PayableDays
		row.GrossSalary = out.GrossSalary
		row.TotalDeductions = out.TotalDeductions
		row.NetSalary = out.NetSalary
		row.Warnings = out.Warnings

		resp.Totals.PayableEmployees++
		resp.Totals.GrossSalary = resp.Totals.GrossSalary.Add(out.GrossSalary)
		resp.Totals.TotalDeductions = resp.Totals.TotalDeductions.Add(out.TotalDeductions)
		resp.Totals.NetSalary = resp.Totals.NetSalary.Add(out.NetSalary)
		resp.Rows = append(resp.Rows, row)
	}

	return resp, nil
}

// ========== GENERATE ==========

func (s *PayrollServiceImpl) Generate(ctx context.Context, actor user.Actor, req payroll.GenerateRequest) (payroll.GenerateResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanGenerate); err != nil {
		return payroll.GenerateResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.GenerateResponse{}, err
	}

	resp := payroll.GenerateResponse{Period: req.Period.String()}
	err := s.withMonthMutex(ctx, s.locker.Wait, actor.CompanyID, req.Period, func() error {
		// Fail fast before reading upstream data; re-checked inside the transaction.
		if err := s.ensureUnlocked(ctx, actor.CompanyID, req.Period); err != nil {
			return err
		}

		in, err := s.loadInputs(ctx, actor.CompanyID, req.Period, req.Scope)
		if err != nil {
			return err
		}

		return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			if err := s.lockRepo.AcquireMonth(txCtx, actor.CompanyID, req.Period); err != nil {
				return err
			}
			resp = payroll.GenerateResponse{Period: req.Period.String()}

			if err := s.ensureUnlocked(txCtx, actor.CompanyID, req.Period); err != nil {
				return err
			}

			existing, _, err := s.lineRepo.List(txCtx, actor.CompanyID, req.Period, payroll.LineFilter{Scope: req.Scope, ForUpdate: true})
			if err != nil {
				return fmt.Errorf("failed to list payroll lines: %w", err)
			}
			byEmployee := make(map[string]payroll.Line, len(existing))
			for _, l := range existing {
				byEmployee[l.EmployeeID] = l
			}

			now := s.now()
			for _, emp := range in.employees {
				line, found := byEmployee[emp.ID]
				if found && !line.Status.IsRecomputable() {
					resp.SkippedApproved++
					continue
				}
				if !found {
					line = payroll.Line{
						ID:         uuid.Must(uuid.NewV7()).String(),
						CompanyID:  actor.CompanyID,
						EmployeeID: emp.ID,
						Period:     req.Period,
					}
				}

				line.BranchID = emp.BranchID
				line.DepartmentID = emp.DepartmentID
				line.GeneratedBy = &actor.UserID
				line.GeneratedAt = &now
				line.Notes = req.Notes

				out, agg, calcErr := s.compute(req.Period, emp, in, now)
				if calcErr != nil {
					line.ApplyFailure(agg, calcErr)
				} else {
					line.ApplyComputation(out)
				}

				written := true
				if found {
					if err := s.lineRepo.UpdateComputation(txCtx, line); err != nil {
						return fmt.Errorf("failed to update payroll line for employee %s: %w", emp.ID, err)
					}
					resp.Updated++
				} else if _, err := s.lineRepo.Create(txCtx, line); errors.Is(err, payroll.ErrLineAlreadyExists) {
					// A concurrent generate inserted the line first.
					written, err = s.regenerateExisting(txCtx, actor.CompanyID, req.Period, line)
					if err != nil {
						return err
					}
					if written {
						resp.Updated++
					} else {
						resp.SkippedApproved++
					}
				} else if err != nil {
					return fmt.Errorf("failed to create payroll line for employee %s: %w", emp.ID, err)
				} else {
					resp.Created++
				}

				if written && line.Status == payroll.LineStatusFailed {
					resp.Failed++
				}
			}

			summary, err := s.lineRepo.Summarize(txCtx, actor.CompanyID, req.Period, employee.Scope{})
			if err != nil {
				return fmt.Errorf("failed to summarize payroll lines: %w", err)
			}
			resp.HeaderStatus = summary.HeaderStatus()

			return s.audit.Append(txCtx, audit.Entry{
				ID:         uuid.Must(uuid.NewV7()).String(),
				CompanyID:  actor.CompanyID,
				EntityType: audit.EntityPayrollMonth,
				EntityID:   req.Period.String(),
				Action:     audit.ActionGenerate,
				ActorID:    actor.UserID,
				NewValue:   resp,
				Metadata:   map[string]any{"scope": req.Scope, "notes": req.Notes},
				CreatedAt:  now,
			})
		})
	})
	if err != nil {
		return payroll.GenerateResponse{}, err
	}

	slog.Info("Payroll generated",
		"company_id", actor.CompanyID,
		"period", req.Period.String(),
		"created", resp.Created,
		"updated", resp.Updated,
		"skipped_approved", resp.SkippedApproved,
		"failed", resp.Failed,
	)
	return resp, nil
}

// regenerateExisting routes a conflicting insert to the update path. It reports
// false when the existing line is no longer recomputable.
func (s *PayrollServiceImpl) regenerateExisting(ctx context.Context, companyID string, period payroll.Period, line payroll.Line) (bool, error) {
	current, _, err := s.lineRepo.List(ctx, companyID, period, payroll.LineFilter{
		Scope:     employee.Scope{EmployeeIDs: []string{line.EmployeeID}},
		ForUpdate: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to reload payroll line for employee %s: %w", line.EmployeeID, err)
	}
	if len(current) == 0 {
		return false, fmt.Errorf("payroll line for employee %s: %w", line.EmployeeID, payroll.ErrLineNotFound)
	}
	if !current[0].Status.IsRecomputable() {
		return false, nil
	}

	line.ID = current[0].ID
	line.CreatedAt = current[0].CreatedAt
	if err := s.lineRepo.UpdateComputation(ctx, line); err != nil {
		return false, fmt.Errorf("failed to update payroll line for employee %s: %w", line.EmployeeID, err)
	}
	return true, nil
}

// ========== APPROVE ==========

func (s *PayrollServiceImpl) ApproveBatch(ctx context.Context, actor user.Actor, req payroll.ApproveRequest) (payroll.ApproveResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanApprove); err != nil {
		return payroll.ApproveResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.ApproveResponse{}, err
	}

	var resp payroll.ApproveResponse
	var approvedIDs []string
	err := s.withMonthMutex(ctx, s.locker.Wait, actor.CompanyID, req.Period, func() error {
		return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			if err := s.lockRepo.AcquireMonth(txCtx, actor.CompanyID, req.Period); err != nil {
				return err
			}
			resp = payroll.ApproveResponse{Period: req.Period.String(), Results: make([]payroll.ApproveResult, 0, len(req.LineIDs))}
			approvedIDs = nil

			if err := s.ensureUnlocked(txCtx, actor.CompanyID, req.Period); err != nil {
				return err
			}

			lines, err := s.lineRepo.GetByIDs(txCtx, actor.CompanyID, req.Period, uniqueStrings(req.LineIDs), true)
			if err != nil {
				return fmt.Errorf("failed to load payroll lines: %w", err)
			}
			byID := make(map[string]payroll.Line, len(lines))
			for _, l := range lines {
				byID[l.ID] = l
			}

			toApprove := make([]payroll.Line, 0, len(lines))
			for _, id := range req.LineIDs {
				line, ok := byID[id]
				if !ok || !req.Scope.Contains(line.EmployeeID, line.BranchID, line.DepartmentID) {
					resp.Results = append(resp.Results, payroll.ApproveResult{LineID: id, Outcome: payroll.ApproveOutcomeNotFound})
					continue
				}

				status := line.Status
				result := payroll.ApproveResult{LineID: id, Status: &status}
				switch {
				case line.Status.IsApprovable():
					result.Outcome = payroll.ApproveOutcomeApproved
					toApprove = append(toApprove, line)
					// A repeated id in the same request is reported as skipped.
					line.Status = payroll.LineStatusApproved
					byID[id] = line
				case line.Status == payroll.LineStatusApproved || line.Status == payroll.LineStatusPaid:
					result.Outcome = payroll.ApproveOutcomeSkipped
				default:
					result.Outcome = payroll.ApproveOutcomeInvalidStatus
				}
				resp.Results = append(resp.Results, result)
			}

			if len(toApprove) == 0 {
				return nil
			}

			now := s.now()
			for _, l := range toApprove {
				approvedIDs = append(approvedIDs, l.ID)
			}
			if _, err := s.lineRepo.MarkApproved(txCtx, actor.CompanyID, approvedIDs, actor.UserID, now); err != nil {
				return fmt.Errorf("failed to approve payroll lines: %w", err)
			}
			resp.Approved = len(approvedIDs)

			for _, l := range toApprove {
				if err := s.audit.Append(txCtx, audit.Entry{
					ID:         uuid.Must(uuid.NewV7()).String(),
					CompanyID:  actor.CompanyID,
					EntityType: audit.EntityPayrollLine,
					EntityID:   l.ID,
					Action:     audit.ActionApprove,
					ActorID:    actor.UserID,
					OldValue:   map[string]any{"status": l.Status},
					NewValue:   map[string]any{"status": payroll.LineStatusApproved},
					Metadata:   map[string]any{"period": req.Period.String(), "employee_id": l.EmployeeID},
					CreatedAt:  now,
				}); err != nil {
					return fmt.Errorf("failed to audit approval of line %s: %w", l.ID, err)
				}
			}

			return s.audit.Append(txCtx, audit.Entry{
				ID:         uuid.Must(uuid.NewV7()).String(),
				CompanyID:  actor.CompanyID,
				EntityType: audit.EntityPayrollMonth,
				EntityID:   req.Period.String(),
				Action:     audit.ActionApprove,
				ActorID:    actor.UserID,
				NewValue:   map[string]any{"approved": resp.Approved, "line_ids": approvedIDs},
				CreatedAt:  now,
			})
		})
	})
	if err != nil {
		return payroll.ApproveResponse{}, err
	}

	if resp.Approved > 0 {
		slog.Info("Payroll lines approved", "company_id", actor.CompanyID, "period", req.Period.String(), "approved", resp.Approved)
		s.publish(ctx, events.Event{
			Type:       events.PayrollLinesApproved,
			CompanyID:  actor.CompanyID,
			Period:     req.Period.String(),
			ActorID:    actor.UserID,
			OccurredAt: s.now(),
			Data:       map[string]any{"line_ids": approvedIDs},
		})
	}
	return resp, nil
}

// ========== PAY AND CLOSE ==========

func (s *PayrollServiceImpl) PayAndClose(ctx context.Context, actor user.Actor, req payroll.PayRequest) (payroll.PayResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanMarkPaid); err != nil {
		return payroll.PayResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.PayResponse{}, err
	}

	var resp payroll.PayResponse
	err := s.withMonthMutex(ctx, s.locker.Obtain, actor.CompanyID, req.Period, func() error {
		return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			if err := s.lockRepo.AcquireMonth(txCtx, actor.CompanyID, req.Period); err != nil {
				return err
			}
			resp = payroll.PayResponse{Period: req.Period.String(), TotalNet: decimal.Zero}

			if err := s.ensureUnlocked(txCtx, actor.CompanyID, req.Period); err != nil {
				return err
			}

			// The lock is month-wide, so every line of the month must be settled
			// regardless of scope.
			lines, _, err := s.lineRepo.List(txCtx, actor.CompanyID, req.Period, payroll.LineFilter{ForUpdate: true})
			if err != nil {
				return fmt.Errorf("failed to list payroll lines: %w", err)
			}
			if len(lines) == 0 {
				return &payroll.PreconditionError{Reason: "no payroll lines for " + req.Period.String()}
			}

			var blocking []payroll.BlockingLine
			for _, l := range lines {
				switch l.Status {
				case payroll.LineStatusApproved:
				case payroll.LineStatusPaid:
					resp.AlreadyPaid++
				default:
					blocking = append(blocking, payroll.BlockingLine{LineID: l.ID, EmployeeID: l.EmployeeID, Status: l.Status})
				}
				resp.TotalNet = resp.TotalNet.Add(l.NetSalary)
			}
			if len(blocking) > 0 {
				return &payroll.PreconditionError{
					Reason: fmt.Sprintf("%d of %d lines are not approved", len(blocking), len(lines)),
					Lines:  blocking,
				}
			}

			now := s.now()
			paid, err := s.lineRepo.MarkPaid(txCtx, actor.CompanyID, req.Period, payroll.PaymentDetails{
				PaidBy:           actor.UserID,
				PaidAt:           now,
				PaymentMethod:    req.PaymentMethod,
				PaymentReference: req.PaymentReference,
				Notes:            req.Notes,
			})
			if err != nil {
				return fmt.Errorf("failed to mark payroll lines paid: %w", err)
			}
			resp.PaidCount = int(paid)

			created, err := s.lockRepo.Create(txCtx, payroll.MonthLock{
				ID:        uuid.Must(uuid.NewV7()).String(),
				CompanyID: actor.CompanyID,
				Period:    req.Period,
				LockedBy:  actor.UserID,
				LockedAt:  now,
				Metadata: map[string]any{
					"payment_method":    req.PaymentMethod,
					"payment_reference": req.PaymentReference,
					"paid_count":        resp.PaidCount,
					"scope":             req.Scope,
				},
			})
			if err != nil {
				return err
			}
			resp.Lock = payroll.NewMonthLockResponse(created)

			return s.audit.Append(txCtx, audit.Entry{
				ID:         uuid.Must(uuid.NewV7()).String(),
				CompanyID:  actor.CompanyID,
				EntityType: audit.EntityPayrollMonth,
				EntityID:   req.Period.String(),
				Action:     audit.ActionPay,
				ActorID:    actor.UserID,
				NewValue: map[string]any{
					"paid_count":   resp.PaidCount,
					"already_paid": resp.AlreadyPaid,
					"total_net":    resp.TotalNet.StringFixed(2),
					"lock_id":      created.ID,
				},
				Metadata: map[string]any{
					"payment_method":    req.PaymentMethod,
					"payment_reference": req.PaymentReference,
					"notes":             req.Notes,
				},
				CreatedAt: now,
			})
		})
	})
	if err != nil {
		return payroll.PayResponse{}, err
	}

	slog.Info("Payroll month paid and locked", "company_id", actor.CompanyID, "period", req.Period.String(), "paid_count", resp.PaidCount)
	s.publish(ctx, events.Event{
		Type:       events.PayrollMonthPaid,
		CompanyID:  actor.CompanyID,
		Period:     req.Period.String(),
		ActorID:    actor.UserID,
		OccurredAt: s.now(),
		Data: map[string]any{
			"paid_count": resp.PaidCount,
			"total_net":  resp.TotalNet.StringFixed(2),
			"lock_id":    resp.Lock.ID,
		},
	})
	return resp, nil
}

// ========== UNLOCK ==========

func (s *PayrollServiceImpl) Unlock(ctx context.Context, actor user.Actor, req payroll.UnlockRequest) (payroll.UnlockResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanUnlock); err != nil {
		return payroll.UnlockResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.UnlockResponse{}, err
	}

	var resp payroll.UnlockResponse
	err := s.withMonthMutex(ctx, s.locker.Obtain, actor.CompanyID, req.Period, func() error {
		return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			if err := s.lockRepo.AcquireMonth(txCtx, actor.CompanyID, req.Period); err != nil {
				return err
			}
			now := s.now()
			released, err := s.lockRepo.Release(txCtx, actor.CompanyID, req.Period, actor.UserID, req.Reason, now)
			if err != nil {
				return err
			}
			resp = payroll.UnlockResponse{Period: req.Period.String(), Lock: payroll.NewMonthLockResponse(released)}

			return s.audit.Append(txCtx, audit.Entry{
				ID:         uuid.Must(uuid.NewV7()).String(),
				CompanyID:  actor.CompanyID,
				EntityType: audit.EntityPayrollMonth,
				EntityID:   req.Period.String(),
				Action:     audit.ActionUnlock,
				ActorID:    actor.UserID,
				OldValue:   map[string]any{"lock_id": released.ID, "locked_by": released.LockedBy, "locked_at": released.LockedAt},
				NewValue:   map[string]any{"reason": req.Reason},
				Metadata:   map[string]any{"reason": req.Reason},
				CreatedAt:  now,
			})
		})
	})
	if err != nil {
		return payroll.UnlockResponse{}, err
	}

	slog.Warn("Payroll month unlocked", "company_id", actor.CompanyID, "period", req.Period.String(), "unlocked_by", actor.UserID)
	s.publish(ctx, events.Event{
		Type:       events.PayrollMonthUnlocked,
		CompanyID:  actor.CompanyID,
		Period:     req.Period.String(),
		ActorID:    actor.UserID,
		OccurredAt: s.now(),
		Data:       map[string]any{"reason": req.Reason, "lock_id": resp.Lock.ID},
	})
	return resp, nil
}

// ========== READS ==========

func (s *PayrollServiceImpl) GetOverview(ctx context.Context, actor user.Actor, req payroll.OverviewRequest) (payroll.OverviewResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanView); err != nil {
		return payroll.OverviewResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return payroll.OverviewResponse{}, err
	}
	req.Normalize()

	header, err := s.header(ctx, actor.CompanyID, req.Period, req.Scope)
	if err != nil {
		return payroll.OverviewResponse{}, err
	}

	lines, total, err := s.lineRepo.List(ctx, actor.CompanyID, req.Period, payroll.LineFilter{
		Scope:  req.Scope,
		Status: req.Status,
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		return payroll.OverviewResponse{}, fmt.Errorf("failed to list payroll lines: %w", err)
	}

	return payroll.OverviewResponse{
		Header:     header,
		Lines:      mapToLineResponses(lines),
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(req.Limit))),
	}, nil
}

func (s *PayrollServiceImpl) header(ctx context.Context, companyID string, period payroll.Period, scope employee.Scope) (payroll.HeaderResponse, error) {
	summary, err := s.lineRepo.Summarize(ctx, companyID, period, scope)
	if err != nil {
		return payroll.HeaderResponse{}, fmt.Errorf("failed to summarize payroll lines: %w", err)
	}
	active, err := s.isLocked(ctx, companyID, period)
	if err != nil {
		return payroll.HeaderResponse{}, err
	}

	header := payroll.HeaderResponse{
		Period:     period.String(),
		Status:     summary.HeaderStatus(),
		Locked:     active != nil,
		TotalLines: summary.TotalLines(),
		Counts: payroll.StatusCounts{
			Draft:     summary.Counts[payroll.LineStatusDraft],
			Generated: summary.Counts[payroll.LineStatusGenerated],
			Approved:  summary.Counts[payroll.LineStatusApproved],
			Paid:      summary.Counts[payroll.LineStatusPaid],
			Failed:    summary.Counts[payroll.LineStatusFailed],
		},
		GrossSalary:     summary.GrossSalary,
		TotalDeductions: summary.TotalDeductions,
		NetSalary:       summary.NetSalary,
	}
	if active != nil {
		lockResp := payroll.NewMonthLockResponse(*active)
		header.ActiveLock = &lockResp
	}
	return header, nil
}

func (s *PayrollServiceImpl) GetMonthHistory(ctx context.Context, actor user.Actor, period payroll.Period) (payroll.MonthHistoryResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanView); err != nil {
		return payroll.MonthHistoryResponse{}, err
	}
	if err := period.Validate(); err != nil {
		return payroll.MonthHistoryResponse{}, err
	}

	locks, err := s.lockRepo.ListByPeriod(ctx, actor.CompanyID, period)
	if err != nil {
		return payroll.MonthHistoryResponse{}, fmt.Errorf("failed to list month locks: %w", err)
	}
	entries, err := s.audit.ListByEntity(ctx, actor.CompanyID, audit.EntityPayrollMonth, period.String())
	if err != nil {
		return payroll.MonthHistoryResponse{}, fmt.Errorf("failed to list month audit entries: %w", err)
	}

	resp := payroll.MonthHistoryResponse{
		Period: period.String(),
		Locks:  make([]payroll.MonthLockResponse, 0, len(locks)),
		Events: entries,
	}
	for _, l := range locks {
		resp.Locks = append(resp.Locks, payroll.NewMonthLockResponse(l))
	}
	if resp.Events == nil {
		resp.Events = []audit.Entry{}
	}
	return resp, nil
}

func (s *PayrollServiceImpl) ExportRegister(ctx context.Context, actor user.Actor, req payroll.OverviewRequest, w io.Writer) error {
	if err := authorize(actor, actor.Capabilities.CanView); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	header, err := s.header(ctx, actor.CompanyID, req.Period, req.Scope)
	if err != nil {
		return err
	}
	lines, _, err := s.lineRepo.List(ctx, actor.CompanyID, req.Period, payroll.LineFilter{Scope: req.Scope, Status: req.Status})
	if err != nil {
		return fmt.Errorf("failed to list payroll lines: %w", err)
	}

	return writeRegister(w, header, lines)
}

func mapToLineResponses(lines []payroll.Line) []payroll.LineResponse {
	responses := make([]payroll.LineResponse, 0, len(lines))
	for _, l := range lines {
		responses = append(responses, payroll.NewLineResponse(l))
	}
	return responses
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
