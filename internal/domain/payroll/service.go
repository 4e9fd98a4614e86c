package payroll

import (
	"context"
	"io"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

// PayrollService is the month workflow. Every call takes the acting user and
// an explicit period; nothing is inferred from an ambient current month.
type PayrollService interface {
	Preview(ctx context.Context, actor user.Actor, req PreviewRequest) (PreviewResponse, error)
	Generate(ctx context.Context, actor user.Actor, req GenerateRequest) (GenerateResponse, error)
	ApproveBatch(ctx context.Context, actor user.Actor, req ApproveRequest) (ApproveResponse, error)
	PayAndClose(ctx context.Context, actor user.Actor, req PayRequest) (PayResponse, error)
	Unlock(ctx context.Context, actor user.Actor, req UnlockRequest) (UnlockResponse, error)

	GetOverview(ctx context.Context, actor user.Actor, req OverviewRequest) (OverviewResponse, error)
	GetMonthHistory(ctx context.Context, actor user.Actor, period Period) (MonthHistoryResponse, error)
	ExportRegister(ctx context.Context, actor user.Actor, req OverviewRequest, w io.Writer) error
}
