package usecase

import (
	"context"
	"time"

	"github.com/iho/splitledger/internal/domain"
)

// MovementRepository defines data access for movements.
type MovementRepository interface {
	Create(ctx context.Context, tx Transaction, movement *domain.Movement) error
	GetByID(ctx context.Context, id string) (*domain.Movement, error)
	GetByIDTx(ctx context.Context, tx Transaction, id string) (*domain.Movement, error)
	// GetByIDForUpdate locks the movement row for the rest of tx. It fails
	// with a conflict instead of waiting when another transaction holds it.
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Movement, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error)
	GetByIdempotencyKeyTx(ctx context.Context, tx Transaction, key string) (*domain.Movement, error)
	SetSplitParent(ctx context.Context, tx Transaction, id string, isSplitParent bool, updatedAt time.Time) error
	ListChildren(ctx context.Context, parentID string) ([]*domain.Movement, error)
	ListChildrenTx(ctx context.Context, tx Transaction, parentID string) ([]*domain.Movement, error)
	DeleteChildren(ctx context.Context, tx Transaction, parentID string) (int64, error)
	SoftDelete(ctx context.Context, tx Transaction, id string, deletedAt time.Time) error
	SoftDeleteChildren(ctx context.Context, tx Transaction, parentID string, deletedAt time.Time) (int64, error)
	List(ctx context.Context, filter MovementFilter) ([]*domain.Movement, error)
}

// MovementFilter narrows a movement listing. Cursor is the id of the last
// movement of the previous page.
type MovementFilter struct {
	AreaID string
	UserID string
	Cursor string
	Limit  int
}

// AreaRepository looks up areas. Soft-deleted areas are reported as missing.
type AreaRepository interface {
	GetByID(ctx context.Context, tx Transaction, id string) (*domain.Area, error)
}

// DepartmentRepository looks up departments. Soft-deleted departments are
// reported as missing.
type DepartmentRepository interface {
	GetByID(ctx context.Context, tx Transaction, id string) (*domain.Department, error)
}

// BankAccountRepository looks up bank accounts.
type BankAccountRepository interface {
	GetByID(ctx context.Context, tx Transaction, id string) (*domain.BankAccount, error)
}

// AccessRepository answers whether a user has a recorded relationship to an
// area. The authorization decision itself is made upstream.
type AccessRepository interface {
	HasAreaAccess(ctx context.Context, tx Transaction, userID, areaID string) (bool, error)
}

// HistoryRepository defines data access for the movement audit trail.
type HistoryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.MovementHistory) error
	ListByMovement(ctx context.Context, movementID string) ([]*domain.MovementHistory, error)
}

// Notifier delivers change notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, notification domain.ChangeNotification)
}

// IdempotencyPending is the value an IdempotencyStore holds for a key while
// the first request carrying it is still running.
const IdempotencyPending = "processing"

// IdempotencyStore caches responses of retried mutating requests.
type IdempotencyStore interface {
	// CheckAndSet reserves key, or returns the stored response if the key is
	// already known.
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier re-runs an operation that failed with a retryable error.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}
