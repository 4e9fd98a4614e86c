package salary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/audit"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/salary"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/google/uuid"
)

type SalaryServiceImpl struct {
	tx         database.Transactor
	salaryRepo salary.SalaryRepository
	directory  employee.Directory
	audit      audit.Recorder
	now        func() time.Time
}

func NewSalaryService(
	tx database.Transactor,
	salaryRepo salary.SalaryRepository,
	directory employee.Directory,
	auditRecorder audit.Recorder,
) salary.SalaryService {
	return &SalaryServiceImpl{
		tx:         tx,
		salaryRepo: salaryRepo,
		directory:  directory,
		audit:      auditRecorder,
		now:        time.Now,
	}
}

func authorize(actor user.Actor, allowed bool) error {
	if actor.CompanyID == "" || actor.UserID == "" || !allowed {
		return salary.ErrForbidden
	}
	return nil
}

func (s *SalaryServiceImpl) ensureEmployee(ctx context.Context, companyID, employeeID string) error {
	if _, err := s.directory.GetByID(ctx, employeeID, companyID); err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) {
			return salary.ErrEmployeeNotFound
		}
		return fmt.Errorf("failed to look up employee: %w", err)
	}
	return nil
}

// Upsert replaces the employee's current structure and appends a history row
// with the field-level diff. Submitting identical values writes nothing.
func (s *SalaryServiceImpl) Upsert(ctx context.Context, actor user.Actor, req salary.UpsertSalaryStructureRequest) (salary.SalaryStructureResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanManageSalary); err != nil {
		return salary.SalaryStructureResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return salary.SalaryStructureResponse{}, err
	}
	if err := s.ensureEmployee(ctx, actor.CompanyID, req.EmployeeID); err != nil {
		return salary.SalaryStructureResponse{}, err
	}

	effectiveFrom, _ := time.Parse("2006-01-02", req.EffectiveFrom)

	var result salary.Structure
	var changes []salary.FieldChange
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var prev *salary.Structure
		current, err := s.salaryRepo.GetCurrent(txCtx, actor.CompanyID, req.EmployeeID, true)
		switch {
		case err == nil:
			prev = &current
		case errors.Is(err, salary.ErrSalaryStructureNotFound):
		default:
			return fmt.Errorf("failed to load current salary structure: %w", err)
		}

		next := salary.Structure{
			ID:            uuid.Must(uuid.NewV7()).String(),
			CompanyID:     actor.CompanyID,
			EmployeeID:    req.EmployeeID,
			Components:    req.Components,
			EffectiveFrom: effectiveFrom,
			Notes:         req.Notes,
			UpdatedBy:     actor.UserID,
		}

		var prevSnapshot *salary.Snapshot
		if prev != nil {
			snap := prev.Snapshot()
			prevSnapshot = &snap
			next.ID = prev.ID
		}
		changes = salary.Diff(prevSnapshot, next.Snapshot())
		if len(changes) == 0 {
			result = *prev
			return nil
		}

		result, err = s.salaryRepo.Upsert(txCtx, next)
		if err != nil {
			return fmt.Errorf("failed to save salary structure: %w", err)
		}

		now := s.now()
		if err := s.salaryRepo.AppendHistory(txCtx, salary.History{
			ID:         uuid.Must(uuid.NewV7()).String(),
			CompanyID:  actor.CompanyID,
			EmployeeID: req.EmployeeID,
			OldValues:  prevSnapshot,
			NewValues:  result.Snapshot(),
			Changes:    changes,
			ChangedBy:  actor.UserID,
			ChangedAt:  now,
		}); err != nil {
			return fmt.Errorf("failed to append salary history: %w", err)
		}

		var oldValue any
		if prevSnapshot != nil {
			oldValue = prevSnapshot
		}
		return s.audit.Append(txCtx, audit.Entry{
			ID:         uuid.Must(uuid.NewV7()).String(),
			CompanyID:  actor.CompanyID,
			EntityType: audit.EntitySalaryStructure,
			EntityID:   req.EmployeeID,
			Action:     audit.ActionUpsert,
			ActorID:    actor.UserID,
			OldValue:   oldValue,
			NewValue:   result.Snapshot(),
			Metadata:   map[string]any{"changes": changes},
			CreatedAt:  now,
		})
	})
	if err != nil {
		return salary.SalaryStructureResponse{}, err
	}

	if len(changes) > 0 {
		slog.Info("Salary structure updated", "company_id", actor.CompanyID, "employee_id", req.EmployeeID, "changed_fields", len(changes))
	}
	return salary.NewSalaryStructureResponse(result), nil
}

func (s *SalaryServiceImpl) Get(ctx context.Context, actor user.Actor, employeeID string) (salary.SalaryStructureResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanViewSalary); err != nil {
		return salary.SalaryStructureResponse{}, err
	}

	st, err := s.salaryRepo.GetCurrent(ctx, actor.CompanyID, employeeID, false)
	if err != nil {
		return salary.SalaryStructureResponse{}, err
	}
	return salary.NewSalaryStructureResponse(st), nil
}

// GetHistory lists changes most recent first.
func (s *SalaryServiceImpl) GetHistory(ctx context.Context, actor user.Actor, employeeID string) (salary.SalaryHistoryListResponse, error) {
	if err := authorize(actor, actor.Capabilities.CanViewSalary); err != nil {
		return salary.SalaryHistoryListResponse{}, err
	}

	histories, err := s.salaryRepo.ListHistory(ctx, actor.CompanyID, employeeID)
	if err != nil {
		return salary.SalaryHistoryListResponse{}, fmt.Errorf("failed to list salary history: %w", err)
	}

	resp := salary.SalaryHistoryListResponse{
		EmployeeID: employeeID,
		Entries:    make([]salary.SalaryHistoryResponse, 0, len(histories)),
	}
	for _, h := range histories {
		resp.Entries = append(resp.Entries, salary.SalaryHistoryResponse{
			ID:        h.ID,
			OldValues: h.OldValues,
			NewValues: h.NewValues,
			Changes:   h.Changes,
			ChangedBy: h.ChangedBy,
			ChangedAt: h.ChangedAt,
		})
	}
	return resp, nil
}

func (s *SalaryServiceImpl) CurrentFor(ctx context.Context, companyID, employeeID string) (salary.Structure, error) {
	return s.salaryRepo.GetCurrent(ctx, companyID, employeeID, false)
}

func (s *SalaryServiceImpl) CurrentForEmployees(ctx context.Context, companyID string, employeeIDs []string) (map[string]salary.Structure, error) {
	return s.salaryRepo.ListCurrent(ctx, companyID, employeeIDs)
}
