package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

// HistoryRepository implements movement history persistence
type HistoryRepository struct {
	db querier
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: pool}
}

// Create appends a history entry within a transaction
func (r *HistoryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.MovementHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO movement_history (id, movement_id, user_id, action, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := conn(tx).Exec(ctx, query,
		entry.ID,
		entry.MovementID,
		entry.UserID,
		string(entry.Action),
		entry.Comment,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history for %s: %w", entry.MovementID, err)
	}

	return nil
}

// ListByMovement retrieves the history of a movement, oldest first
func (r *HistoryRepository) ListByMovement(ctx context.Context, movementID string) ([]*domain.MovementHistory, error) {
	query := `
		SELECT id, movement_id, user_id, action, comment, created_at
		FROM movement_history
		WHERE movement_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, movementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.MovementHistory
	for rows.Next() {
		var (
			entry  domain.MovementHistory
			action string
		)

		err := rows.Scan(
			&entry.ID,
			&entry.MovementID,
			&entry.UserID,
			&action,
			&entry.Comment,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		entry.Action = domain.HistoryAction(action)
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
