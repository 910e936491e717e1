package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

const idempotencyKeyIndex = "movements_idempotency_key_uniq"

const movementColumns = `id, amount, currency, source_bank_account_id, destination_bank_account_id,
	area_id, department_id, user_id, type, status, description, category, reference,
	transaction_date, parent_id, is_split_parent, is_internal_transfer, idempotency_key,
	distribution_id, created_at, updated_at, deleted_at`

// MovementRepository implements usecase.MovementRepository.
type MovementRepository struct {
	db querier
}

// NewMovementRepository creates a new MovementRepository.
func NewMovementRepository(pool *pgxpool.Pool) *MovementRepository {
	return newMovementRepository(pool)
}

func newMovementRepository(db querier) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create inserts a movement within a transaction.
func (r *MovementRepository) Create(ctx context.Context, tx usecase.Transaction, m *domain.Movement) error {
	query := `
		INSERT INTO movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`

	_, err := conn(tx).Exec(ctx, query,
		m.ID,
		m.Amount,
		m.Currency,
		m.SourceBankAccountID,
		m.DestinationBankAccountID,
		m.AreaID,
		m.DepartmentID,
		m.UserID,
		string(m.Type),
		string(m.Status),
		m.Description,
		m.Category,
		m.Reference,
		m.TransactionDate,
		m.ParentID,
		m.IsSplitParent,
		m.IsInternalTransfer,
		m.IdempotencyKey,
		m.DistributionID,
		m.CreatedAt,
		m.UpdatedAt,
		m.DeletedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyKeyIndex) {
			return domain.Conflict(domain.ErrDuplicateIdempotencyKey, "Idempotency key %s already used", deref(m.IdempotencyKey))
		}
		return fmt.Errorf("insert movement %s: %w", m.ID, err)
	}

	return nil
}

// GetByID retrieves a non-deleted movement by ID.
func (r *MovementRepository) GetByID(ctx context.Context, id string) (*domain.Movement, error) {
	return r.getByID(ctx, r.db, id, "")
}

// GetByIDTx retrieves a non-deleted movement by ID within a transaction.
func (r *MovementRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Movement, error) {
	return r.getByID(ctx, conn(tx), id, "")
}

// GetByIDForUpdate locks the movement row without waiting.
func (r *MovementRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Movement, error) {
	return r.getByID(ctx, conn(tx), id, " FOR UPDATE NOWAIT")
}

func (r *MovementRepository) getByID(ctx context.Context, db querier, id, lock string) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE id = $1 AND deleted_at IS NULL` + lock

	m, err := scanMovement(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(domain.ErrMovementNotFound, "Movement %s not found", id)
		}
		return nil, translateError(err, "Movement %s is being modified concurrently", id)
	}

	return m, nil
}

// GetByIdempotencyKey retrieves the non-deleted movement created with key.
func (r *MovementRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error) {
	return r.getByIdempotencyKey(ctx, r.db, key)
}

// GetByIdempotencyKeyTx is GetByIdempotencyKey within a transaction.
func (r *MovementRepository) GetByIdempotencyKeyTx(ctx context.Context, tx usecase.Transaction, key string) (*domain.Movement, error) {
	return r.getByIdempotencyKey(ctx, conn(tx), key)
}

func (r *MovementRepository) getByIdempotencyKey(ctx context.Context, db querier, key string) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE idempotency_key = $1 AND deleted_at IS NULL`

	m, err := scanMovement(db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(domain.ErrMovementNotFound, "Movement with idempotency key %s not found", key)
		}
		return nil, fmt.Errorf("get movement by idempotency key: %w", err)
	}

	return m, nil
}

// SetSplitParent sets the split-parent flag of a movement.
func (r *MovementRepository) SetSplitParent(ctx context.Context, tx usecase.Transaction, id string, isSplitParent bool, updatedAt time.Time) error {
	query := `UPDATE movements SET is_split_parent = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := conn(tx).Exec(ctx, query, id, isSplitParent, updatedAt)
	if err != nil {
		return fmt.Errorf("update split flag of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(domain.ErrMovementNotFound, "Movement %s not found", id)
	}

	return nil
}

// ListChildren lists the non-deleted children of parentID in creation order.
func (r *MovementRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.Movement, error) {
	return r.listChildren(ctx, r.db, parentID)
}

// ListChildrenTx is ListChildren within a transaction.
func (r *MovementRepository) ListChildrenTx(ctx context.Context, tx usecase.Transaction, parentID string) ([]*domain.Movement, error) {
	return r.listChildren(ctx, conn(tx), parentID)
}

func (r *MovementRepository) listChildren(ctx context.Context, db querier, parentID string) ([]*domain.Movement, error) {
	query := `SELECT ` + movementColumns + `
		FROM movements
		WHERE parent_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	rows, err := db.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentID, err)
	}

	return collectMovements(rows)
}

// DeleteChildren hard-deletes every child of parentID.
func (r *MovementRepository) DeleteChildren(ctx context.Context, tx usecase.Transaction, parentID string) (int64, error) {
	tag, err := conn(tx).Exec(ctx, `DELETE FROM movements WHERE parent_id = $1`, parentID)
	if err != nil {
		return 0, fmt.Errorf("delete children of %s: %w", parentID, err)
	}

	return tag.RowsAffected(), nil
}

// SoftDelete marks a movement deleted.
func (r *MovementRepository) SoftDelete(ctx context.Context, tx usecase.Transaction, id string, deletedAt time.Time) error {
	query := `UPDATE movements SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := conn(tx).Exec(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound(domain.ErrMovementNotFound, "Movement %s not found", id)
	}

	return nil
}

// SoftDeleteChildren marks every non-deleted child of parentID deleted.
func (r *MovementRepository) SoftDeleteChildren(ctx context.Context, tx usecase.Transaction, parentID string, deletedAt time.Time) (int64, error) {
	query := `UPDATE movements SET deleted_at = $2, updated_at = $2 WHERE parent_id = $1 AND deleted_at IS NULL`

	tag, err := conn(tx).Exec(ctx, query, parentID, deletedAt)
	if err != nil {
		return 0, fmt.Errorf("soft delete children of %s: %w", parentID, err)
	}

	return tag.RowsAffected(), nil
}

// List returns non-deleted movements ordered by transaction date and id,
// newest first, starting after the cursor movement. The cursor may name a
// movement deleted since the previous page; only its position is used.
func (r *MovementRepository) List(ctx context.Context, filter usecase.MovementFilter) ([]*domain.Movement, error) {
	var (
		conditions = []string{"deleted_at IS NULL"}
		args       []any
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AreaID != "" {
		conditions = append(conditions, "area_id = "+arg(filter.AreaID))
	}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = "+arg(filter.UserID))
	}

	if filter.Cursor != "" {
		var cursorDate time.Time
		err := r.db.QueryRow(ctx,
			`SELECT transaction_date FROM movements WHERE id = $1`,
			filter.Cursor,
		).Scan(&cursorDate)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.BadRequest(domain.ErrInvalidCursor, "Cursor %s does not reference a movement", filter.Cursor)
			}
			return nil, fmt.Errorf("resolve cursor: %w", err)
		}
		conditions = append(conditions, fmt.Sprintf("(transaction_date, id) < (%s, %s)", arg(cursorDate), arg(filter.Cursor)))
	}

	query := `SELECT ` + movementColumns + ` FROM movements WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY transaction_date DESC, id DESC`

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	return collectMovements(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (*domain.Movement, error) {
	var (
		m              domain.Movement
		movementType   string
		movementStatus string
	)

	err := row.Scan(
		&m.ID,
		&m.Amount,
		&m.Currency,
		&m.SourceBankAccountID,
		&m.DestinationBankAccountID,
		&m.AreaID,
		&m.DepartmentID,
		&m.UserID,
		&movementType,
		&movementStatus,
		&m.Description,
		&m.Category,
		&m.Reference,
		&m.TransactionDate,
		&m.ParentID,
		&m.IsSplitParent,
		&m.IsInternalTransfer,
		&m.IdempotencyKey,
		&m.DistributionID,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Type = domain.MovementType(movementType)
	m.Status = domain.MovementStatus(movementStatus)

	return &m, nil
}

func collectMovements(rows pgx.Rows) ([]*domain.Movement, error) {
	defer rows.Close()

	var movements []*domain.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
