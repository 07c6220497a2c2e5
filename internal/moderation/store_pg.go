package moderation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"marketplace-backend/internal/shared/storage/db"
)

// PGStore persists actions into moderation_actions. Inside a transaction the
// insert runs under a savepoint so a failed audit write leaves the surrounding
// work intact.
type PGStore struct {
	DB *sql.DB
}

const insertActionSQL = `
INSERT INTO moderation_actions (id, entity_type, entity_id, action, actor_id, reason, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Record inserts an action, joining the transaction in ctx if present.
func (s *PGStore) Record(ctx context.Context, a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	meta, err := a.MetadataJSON()
	if err != nil {
		return fmt.Errorf("encode moderation metadata: %w", err)
	}
	args := []any{a.ID, a.EntityType, a.EntityID, a.Action, nullString(a.ActorID), nullString(a.Reason), meta, a.CreatedAt}

	tx, ok := db.TxFrom(ctx)
	if !ok {
		_, err := s.DB.ExecContext(ctx, insertActionSQL, args...)
		return err
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT moderation_action"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertActionSQL, args...); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT moderation_action"); rbErr != nil {
			return fmt.Errorf("insert moderation action: %w (rollback to savepoint: %v)", err, rbErr)
		}
		return fmt.Errorf("insert moderation action: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT moderation_action"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// ListByEntity returns actions for an entity, oldest first.
func (s *PGStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]Action, error) {
	const query = `
SELECT id, entity_type, entity_id, action, actor_id, reason, metadata, created_at
FROM moderation_actions
WHERE entity_type = $1 AND entity_id = $2
ORDER BY created_at ASC, id ASC`
	rows, err := db.ExecutorFrom(ctx, s.DB).QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Action{}
	for rows.Next() {
		var a Action
		var actor, reason sql.NullString
		var meta []byte
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Action, &actor, &reason, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ActorID = actor.String
		a.Reason = reason.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("decode moderation metadata: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Recorder = (*PGStore)(nil)
