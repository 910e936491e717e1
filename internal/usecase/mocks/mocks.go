package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/usecase"
)

// Store is an in-memory ledger shared by the mock repositories. Begin takes
// a snapshot that Rollback restores unless the transaction committed, so
// failed operations leave no partial writes behind.
type Store struct {
	mu sync.Mutex

	movements    map[string]*domain.Movement
	areas        map[string]*domain.Area
	departments  map[string]*domain.Department
	bankAccounts map[string]*domain.BankAccount
	access       map[string]bool
	history      []*domain.MovementHistory
}

func NewStore() *Store {
	return &Store{
		movements:    make(map[string]*domain.Movement),
		areas:        make(map[string]*domain.Area),
		departments:  make(map[string]*domain.Department),
		bankAccounts: make(map[string]*domain.BankAccount),
		access:       make(map[string]bool),
	}
}

func (s *Store) AddBankAccount(a *domain.BankAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bankAccounts[a.ID] = a
}

func (s *Store) AddArea(a *domain.Area) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas[a.ID] = a
}

func (s *Store) AddDepartment(d *domain.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[d.ID] = d
}

func (s *Store) GrantAccess(userID, areaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[accessKey(userID, areaID)] = true
}

// PutMovement stores m as is, bypassing every check.
func (s *Store) PutMovement(m *domain.Movement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[m.ID] = cloneMovement(m)
}

// Movement returns a copy of the stored row, deleted or not.
func (s *Store) Movement(id string) (*domain.Movement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movements[id]
	if !ok {
		return nil, false
	}
	return cloneMovement(m), true
}

// MovementCount counts stored rows including soft-deleted ones.
func (s *Store) MovementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movements)
}

// ChildrenOf returns every row referencing parentID, deleted or not.
func (s *Store) ChildrenOf(parentID string) []*domain.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Movement
	for _, m := range s.movements {
		if m.ParentID != nil && *m.ParentID == parentID {
			out = append(out, cloneMovement(m))
		}
	}
	sortByCreation(out)
	return out
}

func (s *Store) History() []*domain.MovementHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.MovementHistory, len(s.history))
	copy(out, s.history)
	return out
}

type snapshot struct {
	movements map[string]*domain.Movement
	history   []*domain.MovementHistory
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		movements: make(map[string]*domain.Movement, len(s.movements)),
		history:   make([]*domain.MovementHistory, len(s.history)),
	}
	for id, m := range s.movements {
		snap.movements[id] = cloneMovement(m)
	}
	copy(snap.history, s.history)
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = snap.movements
	s.history = snap.history
}

func accessKey(userID, areaID string) string {
	return userID + "|" + areaID
}

func cloneMovement(m *domain.Movement) *domain.Movement {
	c := *m
	return &c
}

func sortByCreation(ms []*domain.Movement) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}

// MockMovementRepository is a mock implementation of MovementRepository
// backed by a Store.
type MockMovementRepository struct {
	store *Store

	CreateFunc                func(ctx context.Context, tx usecase.Transaction, movement *domain.Movement) error
	GetByIDForUpdateFunc      func(ctx context.Context, tx usecase.Transaction, id string) (*domain.Movement, error)
	GetByIdempotencyKeyTxFunc func(ctx context.Context, tx usecase.Transaction, key string) (*domain.Movement, error)
	DeleteChildrenFunc        func(ctx context.Context, tx usecase.Transaction, parentID string) (int64, error)
	ListFunc                  func(ctx context.Context, filter usecase.MovementFilter) ([]*domain.Movement, error)
}

func NewMockMovementRepository(store *Store) *MockMovementRepository {
	return &MockMovementRepository{store: store}
}

func (m *MockMovementRepository) Create(ctx context.Context, tx usecase.Transaction, movement *domain.Movement) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, movement)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if movement.IdempotencyKey != nil {
		for _, existing := range m.store.movements {
			if existing.DeletedAt == nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *movement.IdempotencyKey {
				return domain.Conflict(domain.ErrDuplicateIdempotencyKey, "Idempotency key %s already used", *movement.IdempotencyKey)
			}
		}
	}
	m.store.movements[movement.ID] = cloneMovement(movement)
	return nil
}

func (m *MockMovementRepository) GetByID(ctx context.Context, id string) (*domain.Movement, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if mv, ok := m.store.movements[id]; ok && mv.DeletedAt == nil {
		return cloneMovement(mv), nil
	}
	return nil, domain.NotFound(domain.ErrMovementNotFound, "Movement %s not found", id)
}

func (m *MockMovementRepository) GetByIDTx(ctx context.Context, tx usecase.Transaction, id string) (*domain.Movement, error) {
	return m.GetByID(ctx, id)
}

func (m *MockMovementRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Movement, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockMovementRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, mv := range m.store.movements {
		if mv.DeletedAt == nil && mv.IdempotencyKey != nil && *mv.IdempotencyKey == key {
			return cloneMovement(mv), nil
		}
	}
	return nil, domain.NotFound(domain.ErrMovementNotFound, "Movement with idempotency key %s not found", key)
}

func (m *MockMovementRepository) GetByIdempotencyKeyTx(ctx context.Context, tx usecase.Transaction, key string) (*domain.Movement, error) {
	if m.GetByIdempotencyKeyTxFunc != nil {
		return m.GetByIdempotencyKeyTxFunc(ctx, tx, key)
	}
	return m.GetByIdempotencyKey(ctx, key)
}

func (m *MockMovementRepository) SetSplitParent(ctx context.Context, tx usecase.Transaction, id string, isSplitParent bool, updatedAt time.Time) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	mv, ok := m.store.movements[id]
	if !ok {
		return domain.NotFound(domain.ErrMovementNotFound, "Movement %s not found", id)
	}
	mv.IsSplitParent = isSplitParent
	mv.UpdatedAt = updatedAt
	return nil
}

func (m *MockMovementRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.Movement, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*domain.Movement
	for _, mv := range m.store.movements {
		if mv.DeletedAt == nil && mv.ParentID != nil && *mv.ParentID == parentID {
			out = append(out, cloneMovement(mv))
		}
	}
	sortByCreation(out)
	return out, nil
}

func (m *MockMovementRepository) ListChildrenTx(ctx context.Context, tx usecase.Transaction, parentID string) ([]*domain.Movement, error) {
	return m.ListChildren(ctx, parentID)
}

func (m *MockMovementRepository) DeleteChildren(ctx context.Context, tx usecase.Transaction, parentID string) (int64, error) {
	if m.DeleteChildrenFunc != nil {
		return m.DeleteChildrenFunc(ctx, tx, parentID)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var n int64
	for id, mv := range m.store.movements {
		if mv.ParentID != nil && *mv.ParentID == parentID {
			delete(m.store.movements, id)
			n++
		}
	}
	return n, nil
}

func (m *MockMovementRepository) SoftDelete(ctx context.Context, tx usecase.Transaction, id string, deletedAt time.Time) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	mv, ok := m.store.movements[id]
	if !ok || mv.DeletedAt != nil {
		return domain.NotFound(domain.ErrMovementNotFound, "Movement %s not found", id)
	}
	at := deletedAt
	mv.DeletedAt = &at
	return nil
}

func (m *MockMovementRepository) SoftDeleteChildren(ctx context.Context, tx usecase.Transaction, parentID string, deletedAt time.Time) (int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var n int64
	for _, mv := range m.store.movements {
		if mv.DeletedAt == nil && mv.ParentID != nil && *mv.ParentID == parentID {
			at := deletedAt
			mv.DeletedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *MockMovementRepository) List(ctx context.Context, filter usecase.MovementFilter) ([]*domain.Movement, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	var rows []*domain.Movement
	for _, mv := range m.store.movements {
		if mv.DeletedAt != nil {
			continue
		}
		if filter.AreaID != "" && mv.AreaID != filter.AreaID {
			continue
		}
		if filter.UserID != "" && mv.UserID != filter.UserID {
			continue
		}
		rows = append(rows, cloneMovement(mv))
	}

	sort.Slice(rows, func(i, j int) bool { return newerFirst(rows[i], rows[j]) })

	if filter.Cursor != "" {
		cursor, ok := m.store.movements[filter.Cursor]
		if !ok {
			return nil, domain.BadRequest(domain.ErrInvalidCursor, "Cursor %s does not reference a movement", filter.Cursor)
		}
		kept := rows[:0]
		for _, mv := range rows {
			if newerFirst(cursor, mv) {
				kept = append(kept, mv)
			}
		}
		rows = kept
	}

	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

// newerFirst orders by transaction date descending, then id descending.
func newerFirst(a, b *domain.Movement) bool {
	if a.TransactionDate.Equal(b.TransactionDate) {
		return a.ID > b.ID
	}
	return a.TransactionDate.After(b.TransactionDate)
}

// MockAreaRepository is a mock implementation of AreaRepository.
type MockAreaRepository struct {
	store *Store
}

func NewMockAreaRepository(store *Store) *MockAreaRepository {
	return &MockAreaRepository{store: store}
}

func (m *MockAreaRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.Area, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if a, ok := m.store.areas[id]; ok && a.DeletedAt == nil {
		return a, nil
	}
	return nil, domain.ErrAreaNotFound
}

// MockDepartmentRepository is a mock implementation of DepartmentRepository.
type MockDepartmentRepository struct {
	store *Store
}

func NewMockDepartmentRepository(store *Store) *MockDepartmentRepository {
	return &MockDepartmentRepository{store: store}
}

func (m *MockDepartmentRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.Department, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if d, ok := m.store.departments[id]; ok && d.DeletedAt == nil {
		return d, nil
	}
	return nil, domain.ErrDepartmentNotFound
}

// MockBankAccountRepository is a mock implementation of BankAccountRepository.
type MockBankAccountRepository struct {
	store *Store
}

func NewMockBankAccountRepository(store *Store) *MockBankAccountRepository {
	return &MockBankAccountRepository{store: store}
}

func (m *MockBankAccountRepository) GetByID(ctx context.Context, tx usecase.Transaction, id string) (*domain.BankAccount, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if b, ok := m.store.bankAccounts[id]; ok && b.DeletedAt == nil {
		return b, nil
	}
	return nil, domain.ErrBankAccountNotFound
}

// MockAccessRepository is a mock implementation of AccessRepository.
type MockAccessRepository struct {
	store *Store

	HasAreaAccessFunc func(ctx context.Context, tx usecase.Transaction, userID, areaID string) (bool, error)
}

func NewMockAccessRepository(store *Store) *MockAccessRepository {
	return &MockAccessRepository{store: store}
}

func (m *MockAccessRepository) HasAreaAccess(ctx context.Context, tx usecase.Transaction, userID, areaID string) (bool, error) {
	if m.HasAreaAccessFunc != nil {
		return m.HasAreaAccessFunc(ctx, tx, userID, areaID)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.store.access[accessKey(userID, areaID)], nil
}

// MockHistoryRepository is a mock implementation of HistoryRepository.
type MockHistoryRepository struct {
	store *Store

	CreateFunc func(ctx context.Context, tx usecase.Transaction, entry *domain.MovementHistory) error
}

func NewMockHistoryRepository(store *Store) *MockHistoryRepository {
	return &MockHistoryRepository{store: store}
}

func (m *MockHistoryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.MovementHistory) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, entry)
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.history = append(m.store.history, entry)
	return nil
}

func (m *MockHistoryRepository) ListByMovement(ctx context.Context, movementID string) ([]*domain.MovementHistory, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []*domain.MovementHistory
	for _, h := range m.store.history {
		if h.MovementID == movementID {
			out = append(out, h)
		}
	}
	return out, nil
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	store *Store

	BeginFunc func(ctx context.Context) (usecase.Transaction, error)

	mu        sync.Mutex
	begun     int
	committed int
}

func NewMockTransactionManager(store *Store) *MockTransactionManager {
	return &MockTransactionManager{store: store}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	m.mu.Lock()
	m.begun++
	m.mu.Unlock()
	tx := &MockTransaction{manager: m}
	if m.store != nil {
		snap := m.store.snapshot()
		tx.snap = &snap
	}
	return tx, nil
}

// Begun reports how many transactions were started.
func (m *MockTransactionManager) Begun() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begun
}

// Committed reports how many transactions committed.
func (m *MockTransactionManager) Committed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	manager *MockTransactionManager
	snap    *snapshot
	done    bool

	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		if err := m.CommitFunc(ctx); err != nil {
			return err
		}
	}
	m.done = true
	if m.manager != nil {
		m.manager.mu.Lock()
		m.manager.committed++
		m.manager.mu.Unlock()
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	if m.done {
		return nil
	}
	m.done = true
	if m.snap != nil && m.manager != nil && m.manager.store != nil {
		m.manager.store.restore(*m.snap)
	}
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator.
type MockIDGenerator struct {
	GenerateFunc func() string
	Prefix       string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{Prefix: "mock-id"}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("%s-%04d", m.Prefix, m.counter)
}
