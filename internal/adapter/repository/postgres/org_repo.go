package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

// The engine only reads organizational records; their lifecycle is owned by
// an administrative service writing to the same tables.

// AreaRepository implements usecase.AreaRepository.
type AreaRepository struct {
	db querier
}

// NewAreaRepository creates a new AreaRepository.
func NewAreaRepository(pool *pgxpool.Pool) *AreaRepository {
	return &AreaRepository{db: pool}
}

// GetByID retrieves a non-deleted area. The area currency is the currency of
// its bank account.
func (r *AreaRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.Area, error) {
	query := `
		SELECT a.id, a.name, a.code, a.bank_account_id, b.currency, a.created_at, a.deleted_at
		FROM areas a
		JOIN bank_accounts b ON b.id = a.bank_account_id
		WHERE a.id = $1 AND a.deleted_at IS NULL
	`

	var area domain.Area
	err := pick(r.db, tx).QueryRow(ctx, query, id).Scan(
		&area.ID,
		&area.Name,
		&area.Code,
		&area.BankAccountID,
		&area.Currency,
		&area.CreatedAt,
		&area.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAreaNotFound
		}
		return nil, fmt.Errorf("get area %s: %w", id, err)
	}

	return &area, nil
}

// DepartmentRepository implements usecase.DepartmentRepository.
type DepartmentRepository struct {
	db querier
}

// NewDepartmentRepository creates a new DepartmentRepository.
func NewDepartmentRepository(pool *pgxpool.Pool) *DepartmentRepository {
	return &DepartmentRepository{db: pool}
}

// GetByID retrieves a non-deleted department.
func (r *DepartmentRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.Department, error) {
	query := `
		SELECT id, name, code, area_id, created_at, deleted_at
		FROM departments
		WHERE id = $1 AND deleted_at IS NULL
	`

	var d domain.Department
	err := pick(r.db, tx).QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.Name,
		&d.Code,
		&d.AreaID,
		&d.CreatedAt,
		&d.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("get department %s: %w", id, err)
	}

	return &d, nil
}

// BankAccountRepository implements usecase.BankAccountRepository.
type BankAccountRepository struct {
	db querier
}

// NewBankAccountRepository creates a new BankAccountRepository.
func NewBankAccountRepository(pool *pgxpool.Pool) *BankAccountRepository {
	return &BankAccountRepository{db: pool}
}

// GetByID retrieves a non-deleted bank account.
func (r *BankAccountRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.BankAccount, error) {
	query := `
		SELECT id, name, currency, created_at, deleted_at
		FROM bank_accounts
		WHERE id = $1 AND deleted_at IS NULL
	`

	var b domain.BankAccount
	err := pick(r.db, tx).QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.Name,
		&b.Currency,
		&b.CreatedAt,
		&b.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBankAccountNotFound
		}
		return nil, fmt.Errorf("get bank account %s: %w", id, err)
	}

	return &b, nil
}

// AccessRepository implements usecase.AccessRepository over user_areas.
type AccessRepository struct {
	db querier
}

// NewAccessRepository creates a new AccessRepository.
func NewAccessRepository(pool *pgxpool.Pool) *AccessRepository {
	return &AccessRepository{db: pool}
}

// HasAreaAccess reports whether a user_areas row links userID to areaID.
func (r *AccessRepository) HasAreaAccess(ctx context.Context, tx usecase.Transaction, userID, areaID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM user_areas WHERE user_id = $1 AND area_id = $2)`

	var ok bool
	if err := pick(r.db, tx).QueryRow(ctx, query, userID, areaID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check area access: %w", err)
	}

	return ok, nil
}

// pick prefers the transaction when one is given.
func pick(db querier, tx usecase.Transaction) querier {
	if tx == nil {
		return db
	}
	return conn(tx)
}
