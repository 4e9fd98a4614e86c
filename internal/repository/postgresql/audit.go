package postgresql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/audit"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
)

type auditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) audit.Recorder {
	return &auditRepository{db: db}
}

// jsonOrNull encodes v for a nullable JSONB column.
func jsonOrNull(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *auditRepository) Append(ctx context.Context, entry audit.Entry) error {
	q := GetQuerier(ctx, r.db)

	oldValue, err := jsonOrNull(entry.OldValue)
	if err != nil {
		return fmt.Errorf("failed to encode audit old value: %w", err)
	}
	newValue, err := jsonOrNull(entry.NewValue)
	if err != nil {
		return fmt.Errorf("failed to encode audit new value: %w", err)
	}
	var metadata []byte
	if entry.Metadata != nil {
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, company_id, entity_type, entity_id, action, actor_id, old_value, new_value, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if _, err := q.Exec(ctx, query,
		entry.ID, entry.CompanyID, entry.EntityType, entry.EntityID, entry.Action, entry.ActorID,
		oldValue, newValue, metadata, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, companyID string, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, company_id, entity_type, entity_id, action, actor_id, old_value, new_value, metadata, created_at
		FROM audit_logs
		WHERE company_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC, id DESC
	`

	rows, err := q.Query(ctx, query, companyID, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		var oldValue, newValue, metadata []byte
		if err := rows.Scan(
			&e.ID, &e.CompanyID, &e.EntityType, &e.EntityID, &e.Action, &e.ActorID,
			&oldValue, &newValue, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(oldValue) > 0 {
			e.OldValue = json.RawMessage(oldValue)
		}
		if len(newValue) > 0 {
			e.NewValue = json.RawMessage(newValue)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
