package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/employee"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type PayrollHandler interface {
	// Workflow
	Preview(w http.ResponseWriter, r *http.Request)
	Generate(w http.ResponseWriter, r *http.Request)
	Approve(w http.ResponseWriter, r *http.Request)
	Pay(w http.ResponseWriter, r *http.Request)
	Unlock(w http.ResponseWriter, r *http.Request)

	// Read side
	GetOverview(w http.ResponseWriter, r *http.Request)
	GetHistory(w http.ResponseWriter, r *http.Request)
	Export(w http.ResponseWriter, r *http.Request)
}

type payrollHandlerImpl struct {
	payrollService payroll.PayrollService
}

func NewPayrollHandler(payrollService payroll.PayrollService) PayrollHandler {
	return &payrollHandlerImpl{payrollService: payrollService}
}

// requestActor resolves the actor and the {period} path parameter shared by every route.
func requestActor(w http.ResponseWriter, r *http.Request) (user.Actor, payroll.Period, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.HandleError(w, user.ErrUnauthenticated)
		return user.Actor{}, payroll.Period{}, false
	}

	period, err := payroll.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		response.HandleError(w, err)
		return user.Actor{}, payroll.Period{}, false
	}
	return actor, period, true
}

func scopeFromQuery(r *http.Request) employee.Scope {
	var scope employee.Scope
	q := r.URL.Query()
	if v := q.Get("branch_id"); v != "" {
		scope.BranchID = &v
	}
	if v := q.Get("department_id"); v != "" {
		scope.DepartmentID = &v
	}
	if v := q.Get("employee_ids"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				scope.EmployeeIDs = append(scope.EmployeeIDs, id)
			}
		}
	}
	return scope
}

func overviewFromQuery(r *http.Request, period payroll.Period) payroll.OverviewRequest {
	req := payroll.OverviewRequest{
		Period: period,
		Scope:  scopeFromQuery(r),
	}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := payroll.LineStatus(v)
		req.Status = &status
	}
	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			req.Page = page
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			req.Limit = limit
		}
	}
	return req
}

func (h *payrollHandlerImpl) Preview(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	result, err := h.payrollService.Preview(r.Context(), actor, payroll.PreviewRequest{
		Period: period,
		Scope:  scopeFromQuery(r),
	})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) Generate(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	var req payroll.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.Period = period

	result, err := h.payrollService.Generate(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll generated successfully", result)
}

func (h *payrollHandlerImpl) Approve(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	var req payroll.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.Period = period

	result, err := h.payrollService.ApproveBatch(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) Pay(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	var req payroll.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.Period = period

	result, err := h.payrollService.PayAndClose(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll paid and month locked", result)
}

func (h *payrollHandlerImpl) Unlock(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	var req payroll.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	req.Period = period

	result, err := h.payrollService.Unlock(r.Context(), actor, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll month unlocked", result)
}

func (h *payrollHandlerImpl) GetOverview(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	result, err := h.payrollService.GetOverview(r.Context(), actor, overviewFromQuery(r, period))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, result, &response.Meta{
		Page:       result.Page,
		Limit:      result.Limit,
		TotalItems: result.Total,
		TotalPages: result.TotalPages,
	})
}

func (h *payrollHandlerImpl) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	result, err := h.payrollService.GetMonthHistory(r.Context(), actor, period)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *payrollHandlerImpl) Export(w http.ResponseWriter, r *http.Request) {
	actor, period, ok := requestActor(w, r)
	if !ok {
		return
	}

	// Buffer so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.payrollService.ExportRegister(r.Context(), actor, overviewFromQuery(r, period), &buf); err != nil {
		response.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=payroll-register-%s.xlsx", period))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
