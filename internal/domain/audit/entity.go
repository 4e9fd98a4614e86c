package audit

import (
	"context"
	"time"
)

type EntityType string

const (
	EntityPayrollMonth    EntityType = "payroll_month"
	EntityPayrollLine     EntityType = "payroll_line"
	EntitySalaryStructure EntityType = "salary_structure"
)

type Action string

const (
	ActionUpsert   Action = "upsert"
	ActionGenerate Action = "generate"
	ActionApprove  Action = "approve"
	ActionPay      Action = "pay"
	ActionLock     Action = "lock"
	ActionUnlock   Action = "unlock"
)

// Entry is one append-only audit record. Values are stored as JSON documents.
type Entry struct {
	ID         string         `json:"id"`
	CompanyID  string         `json:"-"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     Action         `json:"action"`
	ActorID    string         `json:"actor_id"`
	OldValue   any            `json:"old_value,omitempty"`
	NewValue   any            `json:"new_value,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Recorder appends audit entries and reads them back newest first.
type Recorder interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, companyID string, entityType EntityType, entityID string) ([]Entry, error)
}
